package cloak

const (
	// SessionUserKey holds the identifier of the cloaked principal.
	SessionUserKey = "_cloak"
	// SessionRedirectKey holds the location to return to on uncloak.
	SessionRedirectKey = "_cloak_redirect"
)

// SessionStore is a per client key value store persisted across requests
// by the host application.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Session is a SessionStore bound to one request that can be written
// back to the client.
type Session interface {
	SessionStore
	Save() error
	Regenerate() error
}

// CloakState is the session scoped cloak overlay. The zero value is the
// plain, not cloaked, state.
type CloakState struct {
	CloakedUserID  string
	ReturnLocation string
}

// Active reports whether a cloak is in effect.
func (s CloakState) Active() bool {
	return s.CloakedUserID != ""
}

// LoadState reads the cloak state from store.
func LoadState(store SessionStore) CloakState {
	if store == nil {
		return CloakState{}
	}

	var state CloakState
	if id, ok := store.Get(SessionUserKey); ok {
		state.CloakedUserID = id
	}
	if loc, ok := store.Get(SessionRedirectKey); ok {
		state.ReturnLocation = loc
	}
	return state
}

// Persist writes s to store. Empty fields delete their key.
func (s CloakState) Persist(store SessionStore) {
	if store == nil {
		return
	}

	if s.CloakedUserID == "" {
		store.Delete(SessionUserKey)
	} else {
		store.Set(SessionUserKey, s.CloakedUserID)
	}

	if s.ReturnLocation == "" {
		store.Delete(SessionRedirectKey)
	} else {
		store.Set(SessionRedirectKey, s.ReturnLocation)
	}
}

// MemorySession is a SessionStore backed by a map. It is not safe for
// concurrent use, matching a single client's session.
type MemorySession map[string]string

// Get implements SessionStore.
func (m MemorySession) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Set implements SessionStore.
func (m MemorySession) Set(key, value string) {
	m[key] = value
}

// Delete implements SessionStore.
func (m MemorySession) Delete(key string) {
	delete(m, key)
}
