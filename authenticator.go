package cloak

import (
	"context"

	"github.com/goliatone/go-errors"
)

const (
	// SessionAuthUserKey holds the identifier of the authenticated principal.
	SessionAuthUserKey = "_auth_user_id"
	// SessionAuthBackendKey holds the backend that authenticated the principal.
	SessionAuthBackendKey = "_auth_user_backend"

	DefaultAuthBackend = "cloak.SessionAuthenticator"
)

var _ Authenticator = SessionAuthenticator{}

// SessionAuthenticator stores the authenticated principal id in the
// session. A fresh login never inherits a cloak.
type SessionAuthenticator struct {
	Backend string
}

// EstablishSession implements Authenticator.
func (a SessionAuthenticator) EstablishSession(ctx context.Context, store SessionStore, principal Principal) error {
	if principal == nil {
		return ErrUserNotFound
	}
	if store == nil {
		return errors.New("session store is required", errors.CategoryInternal)
	}

	backend := a.Backend
	if backend == "" {
		backend = DefaultAuthBackend
	}

	CloakState{}.Persist(store)
	store.Set(SessionAuthUserKey, principal.PrincipalID())
	store.Set(SessionAuthBackendKey, backend)
	return nil
}

// AuthenticatedPrincipal resolves the principal recorded by
// SessionAuthenticator. It returns ErrUnauthenticated when the session
// has no principal or it no longer resolves.
func AuthenticatedPrincipal(ctx context.Context, dir UserDirectory, store SessionStore) (Principal, error) {
	if store == nil {
		return nil, ErrUnauthenticated
	}

	id, ok := store.Get(SessionAuthUserKey)
	if !ok || id == "" {
		return nil, ErrUnauthenticated
	}

	p, err := dir.GetByPrimaryKey(ctx, id)
	if err != nil {
		if IsError(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	return p, nil
}
