package cloak

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventCloakBegin        ActivityEventType = "cloak.begin.success"
	ActivityEventCloakDenied       ActivityEventType = "cloak.begin.failure"
	ActivityEventCloakEnd          ActivityEventType = "cloak.end"
	ActivityEventLoginLinkIssued   ActivityEventType = "cloak.login_link.issued"
	ActivityEventLoginLinkRedeemed ActivityEventType = "cloak.login_link.redeemed"
	ActivityEventLoginLinkRejected ActivityEventType = "cloak.login_link.rejected"
)

// ActivityEvent captures audit friendly information about a cloak action.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    string
	TargetID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
