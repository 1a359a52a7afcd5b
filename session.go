package cloak

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

const (
	// LocalsSessionKey caches the loaded session for the request.
	LocalsSessionKey = "cloak.session"
	// LocalsIdentityKey holds the request Identity.
	LocalsIdentityKey = "cloak.identity"
	// LocalsPrincipalKey holds the authenticated Principal.
	LocalsPrincipalKey = "cloak.principal"
)

var _ Session = &FiberSession{}

// FiberSession adapts a fiber session to Session.
type FiberSession struct {
	sess *session.Session
}

// Get implements SessionStore. Non string values read as absent.
func (s *FiberSession) Get(key string) (string, bool) {
	raw := s.sess.Get(key)
	if raw == nil {
		return "", false
	}
	v, ok := raw.(string)
	return v, ok
}

// Set implements SessionStore.
func (s *FiberSession) Set(key, value string) {
	s.sess.Set(key, value)
}

// Delete implements SessionStore.
func (s *FiberSession) Delete(key string) {
	s.sess.Delete(key)
}

// Save persists the session and refreshes the client cookie. fiber
// releases the underlying session on save, so it is the last call made
// on s during a request.
func (s *FiberSession) Save() error {
	return s.sess.Save()
}

// Regenerate assigns a new session id, keeping the data.
func (s *FiberSession) Regenerate() error {
	return s.sess.Regenerate()
}

// ID returns the session id.
func (s *FiberSession) ID() string {
	return s.sess.ID()
}

// Sessions loads per request sessions from a fiber session store.
type Sessions struct {
	store *session.Store
}

// NewSessions builds a session store. Session ids default to random
// UUIDs; cfg.Storage nil keeps fiber's in memory storage.
func NewSessions(cfg ...session.Config) *Sessions {
	c := session.Config{}
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = uuid.NewString
	}
	return &Sessions{store: session.New(c)}
}

// Load returns the session for the request, loading it once per request.
func (s *Sessions) Load(c *fiber.Ctx) (*FiberSession, error) {
	if cached, ok := c.Locals(LocalsSessionKey).(*FiberSession); ok && cached != nil {
		return cached, nil
	}

	sess, err := s.store.Get(c)
	if err != nil {
		return nil, err
	}

	fs := &FiberSession{sess: sess}
	c.Locals(LocalsSessionKey, fs)
	return fs, nil
}

// Middleware loads the session into the request locals where router
// handlers find it with SessionFromRouterContext. It must be installed
// on the fiber app ahead of the cloak routes.
func (s *Sessions) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := s.Load(c); err != nil {
			return err
		}
		return c.Next()
	}
}

// SessionFromRouterContext returns the session loaded by
// Sessions.Middleware.
func SessionFromRouterContext(ctx router.Context) (Session, bool) {
	sess, ok := ctx.Locals(LocalsSessionKey).(Session)
	return sess, ok && sess != nil
}
