// Package activitymap flattens cloak activity events into a record shape
// that audit stores and log pipelines can ingest.
package activitymap

import (
	"context"
	"strings"
	"time"

	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-print"
)

// MetadataKeyImpersonated marks records produced while a cloak begins or
// ends, so audit queries can filter impersonation activity.
const MetadataKeyImpersonated = "impersonated"

const (
	defaultChannel    = "cloak"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Record is the normalized form of a cloak.ActivityEvent.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes Normalize.
type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
}

// WithChannel sets the record channel.
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the record object type.
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor used for events without one, such as
// links issued from the CLI.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts event into a Record.
func Normalize(event cloak.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	actorID := strings.TrimSpace(event.ActorID)
	if actorID == "" {
		actorID = o.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Record{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.TargetID),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

// LogSink returns an ActivitySink writing each normalized record to
// logger at info level.
func LogSink(logger cloak.Logger, opts ...Option) cloak.ActivitySink {
	return cloak.ActivitySinkFunc(func(_ context.Context, event cloak.ActivityEvent) error {
		record := Normalize(event, opts...)
		logger.Info("cloak activity", "verb", record.Verb, "record", print.MaybePrettyJSON(record))
		return nil
	})
}

func metadata(event cloak.ActivityEvent) map[string]any {
	var out map[string]any
	if len(event.Metadata) > 0 {
		out = make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			out[k] = v
		}
	}

	switch event.EventType {
	case cloak.ActivityEventCloakBegin, cloak.ActivityEventCloakEnd:
		if out == nil {
			out = map[string]any{}
		}
		out[MetadataKeyImpersonated] = true
	}

	return out
}
