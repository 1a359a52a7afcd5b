package cloak_test

import (
	"context"
	"sync"
	"time"

	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-cloak/repository"
)

const testSecret = "test-secret-key-for-login-links"

type testConfig struct {
	signingKey    string
	baseURL       string
	routePrefix   string
	loginRedirect string
	maxAge        time.Duration
	backend       string
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:    testSecret,
		baseURL:       "https://example.com",
		routePrefix:   "/cloak",
		loginRedirect: "/dashboard",
		maxAge:        cloak.MaxLoginLinkAge,
	}
}

func (c testConfig) GetSigningKey() string             { return c.signingKey }
func (c testConfig) GetBaseURL() string                { return c.baseURL }
func (c testConfig) GetRoutePrefix() string            { return c.routePrefix }
func (c testConfig) GetLoginRedirectURL() string       { return c.loginRedirect }
func (c testConfig) GetLoginLinkMaxAge() time.Duration { return c.maxAge }
func (c testConfig) GetAuthBackend() string            { return c.backend }

// fakeClock returns whole seconds since token timestamps are truncated.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []cloak.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event cloak.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []cloak.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cloak.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// seedUsers returns a directory with an admin (1), a regular user (2)
// and a staff member (3).
func seedUsers() *repository.MemoryUsers {
	return repository.NewMemoryUsers(
		&repository.User{ID: 1, Username: "admin", Email: "admin@example.com", IsActive: true, IsSuperuser: true},
		&repository.User{ID: 2, Username: "alice", Email: "alice@example.com", IsActive: true},
		&repository.User{ID: 3, Username: "bob", Email: "bob@example.com", IsActive: true, IsStaff: true},
	)
}
