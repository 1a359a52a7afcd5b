package cloak

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging contract used across the package
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds cloak options
type Config interface {
	GetSigningKey() string
	GetBaseURL() string
	GetRoutePrefix() string
	GetLoginRedirectURL() string
	// GetLoginLinkMaxAge values above MaxLoginLinkAge lengthen the
	// window in which an intercepted link logs its bearer in.
	GetLoginLinkMaxAge() time.Duration
	GetAuthBackend() string
}

// Authenticator establishes the host application's normal authenticated
// session for a principal.
type Authenticator interface {
	EstablishSession(ctx context.Context, store SessionStore, principal Principal) error
}

// Navigation carries the request details used to compute redirects.
type Navigation struct {
	// Next is the explicit "next" request parameter.
	Next string
	// Referer is the referring location of the request.
	Referer string
	// Host is the host the request was addressed to, used for same
	// origin checks.
	Host string
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(format("[DBG] CLOAK ", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(format("[INF] CLOAK ", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(format("[WRN] CLOAK ", msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(format("[ERR] CLOAK ", msg, args...))
}

func format(prefix, msg string, args ...any) string {
	out := prefix + msg
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			out += fmt.Sprintf(" %v", args[i])
		}
	}
	return out
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
