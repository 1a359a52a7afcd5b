package cloak_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-cloak/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc   *cloak.Service
	users *repository.MemoryUsers
	clock *fakeClock
	sink  *recordingSink
}

func newServiceFixture(t *testing.T, cfg testConfig) serviceFixture {
	t.Helper()

	users := seedUsers()
	clock := newFakeClock()
	sink := &recordingSink{}

	svc, err := cloak.NewService(users, cfg)
	require.NoError(t, err)

	signer, err := cloak.NewTokenSigner([]byte(cfg.GetSigningKey()), cloak.WithSignerClock(clock.Now))
	require.NoError(t, err)

	svc.WithSigner(signer).WithActivitySink(sink).WithLogger(nopLogger{})

	return serviceFixture{svc: svc, users: users, clock: clock, sink: sink}
}

func tokenFromURL(t *testing.T, link string) string {
	t.Helper()
	idx := strings.LastIndex(link, "/login/")
	require.NotEqual(t, -1, idx, "unexpected login url %s", link)
	return link[idx+len("/login/"):]
}

func TestNewService(t *testing.T) {
	_, err := cloak.NewService(nil, newTestConfig())
	assert.Error(t, err)

	_, err = cloak.NewService(seedUsers(), nil)
	assert.Error(t, err)

	cfg := newTestConfig()
	cfg.signingKey = "short"
	_, err = cloak.NewService(seedUsers(), cfg)
	assert.True(t, cloak.IsError(err, cloak.ErrSigningKeyTooShort))
}

func TestService_LoginURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		prefix  string
		want    string
	}{
		{name: "base and prefix", baseURL: "https://example.com", prefix: "/cloak", want: "https://example.com/cloak/login/tok"},
		{name: "trailing slashes", baseURL: "https://example.com/", prefix: "cloak/", want: "https://example.com/cloak/login/tok"},
		{name: "no prefix", baseURL: "https://example.com", prefix: "", want: "https://example.com/login/tok"},
		{name: "relative", baseURL: "", prefix: "/cloak", want: "/cloak/login/tok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.baseURL = tt.baseURL
			cfg.routePrefix = tt.prefix

			svc, err := cloak.NewService(seedUsers(), cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, svc.LoginURL("tok"))
		})
	}
}

func TestService_IssueAndRedeemLoginLink(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, newTestConfig())

	target, err := f.svc.ResolveLoginTarget(ctx, "alice")
	require.NoError(t, err)

	link, err := f.svc.IssueLoginLink(ctx, target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://example.com/cloak/login/"))

	store := cloak.MemorySession{cloak.SessionUserKey: "3"}
	principal, redirect, err := f.svc.RedeemLoginLink(ctx, store, tokenFromURL(t, link))
	require.NoError(t, err)

	assert.Equal(t, "2", principal.PrincipalID())
	assert.Equal(t, "/dashboard", redirect)
	assert.Equal(t, "2", store[cloak.SessionAuthUserKey])
	assert.False(t, cloak.LoadState(store).Active())

	assert.Equal(t, []cloak.ActivityEventType{
		cloak.ActivityEventLoginLinkIssued,
		cloak.ActivityEventLoginLinkRedeemed,
	}, f.sink.Types())
}

func TestService_IssueLoginLinkDefaultTarget(t *testing.T) {
	ctx := context.Background()

	users := repository.NewMemoryUsers(
		&repository.User{ID: 3, Username: "c", IsSuperuser: true},
		&repository.User{ID: 1, Username: "a"},
		&repository.User{ID: 2, Username: "b", IsStaff: true},
	)
	svc, err := cloak.NewService(users, newTestConfig())
	require.NoError(t, err)

	target, err := svc.ResolveLoginTarget(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "3", target.PrincipalID())

	empty, err := cloak.NewService(repository.NewMemoryUsers(), newTestConfig())
	require.NoError(t, err)

	_, err = empty.ResolveLoginTarget(ctx, "")
	assert.True(t, cloak.IsError(err, cloak.ErrNoUsersFound))

	_, err = svc.ResolveLoginTarget(ctx, "ghost")
	assert.True(t, cloak.IsError(err, cloak.ErrUserNotFound))

	_, err = svc.IssueLoginLink(ctx, nil)
	assert.True(t, cloak.IsError(err, cloak.ErrUserNotFound))
}

func TestService_RedeemLoginLinkRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("expired", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)

		f.clock.Advance(61 * time.Second)

		store := cloak.MemorySession{}
		_, _, err = f.svc.RedeemLoginLink(ctx, store, tokenFromURL(t, link))
		assert.True(t, cloak.IsError(err, cloak.ErrSignatureExpired))
		assert.True(t, cloak.IsLoginRejected(err))
		assert.Empty(t, store)
		assert.Contains(t, f.sink.Types(), cloak.ActivityEventLoginLinkRejected)
	})

	t.Run("configured max age", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.maxAge = 10 * time.Second
		f := newServiceFixture(t, cfg)
		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)

		f.clock.Advance(11 * time.Second)

		_, _, err = f.svc.RedeemLoginLink(ctx, cloak.MemorySession{}, tokenFromURL(t, link))
		assert.True(t, cloak.IsError(err, cloak.ErrSignatureExpired))
	})

	t.Run("tampered", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)

		token := tokenFromURL(t, link)
		_, _, err = f.svc.RedeemLoginLink(ctx, cloak.MemorySession{}, token+"x")
		assert.True(t, cloak.IsError(err, cloak.ErrInvalidSignature))
	})

	t.Run("subject deleted after issue", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)

		f.users.Remove(2)

		_, _, err = f.svc.RedeemLoginLink(ctx, cloak.MemorySession{}, tokenFromURL(t, link))
		assert.True(t, cloak.IsError(err, cloak.ErrUserNotFound))
		assert.False(t, cloak.IsLoginRejected(err))
	})
}

func TestService_LoginLinkReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("reusable inside the window by default", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)
		token := tokenFromURL(t, link)

		for i := 0; i < 2; i++ {
			_, _, err := f.svc.RedeemLoginLink(ctx, cloak.MemorySession{}, token)
			assert.NoError(t, err)
		}
	})

	t.Run("single use with a replay guard", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		f.svc.WithReplayGuard(cloak.NewMemoryReplayGuard(16, time.Minute))

		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)
		token := tokenFromURL(t, link)

		_, _, err = f.svc.RedeemLoginLink(ctx, cloak.MemorySession{}, token)
		require.NoError(t, err)

		store := cloak.MemorySession{}
		_, _, err = f.svc.RedeemLoginLink(ctx, store, token)
		assert.True(t, cloak.IsError(err, cloak.ErrTokenReplayed))
		assert.True(t, cloak.IsLoginRejected(err))
		assert.Empty(t, store)
	})

	t.Run("guard failure", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		f.svc.WithReplayGuard(failingGuard{})

		alice, _ := f.users.GetByPrimaryKey(ctx, "2")
		link, err := f.svc.IssueLoginLink(ctx, alice)
		require.NoError(t, err)

		_, _, err = f.svc.RedeemLoginLink(ctx, cloak.MemorySession{}, tokenFromURL(t, link))
		assert.Error(t, err)
		assert.False(t, cloak.IsLoginRejected(err))
	})
}

type failingGuard struct{}

func (failingGuard) Consume(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("guard offline")
}

type authenticatorFunc func(ctx context.Context, store cloak.SessionStore, p cloak.Principal) error

func (f authenticatorFunc) EstablishSession(ctx context.Context, store cloak.SessionStore, p cloak.Principal) error {
	return f(ctx, store, p)
}

func TestService_CustomAuthenticator(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, newTestConfig())

	var got string
	f.svc.WithAuthenticator(authenticatorFunc(func(_ context.Context, store cloak.SessionStore, p cloak.Principal) error {
		got = p.PrincipalID()
		store.Set("uid", p.PrincipalID())
		return nil
	}))

	bob, _ := f.users.GetByPrimaryKey(ctx, "3")
	link, err := f.svc.IssueLoginLink(ctx, bob)
	require.NoError(t, err)

	store := cloak.MemorySession{}
	_, _, err = f.svc.RedeemLoginLink(ctx, store, tokenFromURL(t, link))
	require.NoError(t, err)
	assert.Equal(t, "3", got)
	assert.Equal(t, "3", store["uid"])
}

func TestService_BeginCloak(t *testing.T) {
	ctx := context.Background()
	nav := cloak.Navigation{Host: "example.com", Referer: "/users/"}

	t.Run("admin cloaks as a user", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		admin, _ := f.users.GetByPrimaryKey(ctx, "1")

		state, redirect, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, admin, "2", nav)
		require.NoError(t, err)

		assert.Equal(t, cloak.CloakState{CloakedUserID: "2", ReturnLocation: "/users/"}, state)
		assert.Equal(t, "/dashboard", redirect)
		assert.Equal(t, []cloak.ActivityEventType{cloak.ActivityEventCloakBegin}, f.sink.Types())
	})

	t.Run("next parameter", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		admin, _ := f.users.GetByPrimaryKey(ctx, "1")

		withNext := nav
		withNext.Next = "/inbox"
		_, redirect, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, admin, "2", withNext)
		require.NoError(t, err)
		assert.Equal(t, "/inbox", redirect)

		withNext.Next = "https://evil.com/"
		_, redirect, err = f.svc.BeginCloak(ctx, cloak.CloakState{}, admin, "2", withNext)
		require.NoError(t, err)
		assert.Equal(t, "/dashboard", redirect)
	})

	t.Run("no referer stores the default", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		admin, _ := f.users.GetByPrimaryKey(ctx, "1")

		state, _, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, admin, "2", cloak.Navigation{Host: "example.com"})
		require.NoError(t, err)
		assert.Equal(t, "/dashboard", state.ReturnLocation)
	})

	t.Run("retargeting overwrites", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		admin, _ := f.users.GetByPrimaryKey(ctx, "1")

		previous := cloak.CloakState{CloakedUserID: "2", ReturnLocation: "/old"}
		state, _, err := f.svc.BeginCloak(ctx, previous, admin, "3", nav)
		require.NoError(t, err)
		assert.Equal(t, "3", state.CloakedUserID)
		assert.Equal(t, "/users/", state.ReturnLocation)
	})

	failures := []struct {
		name    string
		actorID string
		target  string
		wantErr *goerrors.Error
	}{
		{name: "regular user denied", actorID: "2", target: "3", wantErr: cloak.ErrCloakForbidden},
		{name: "unknown target", actorID: "1", target: "99", wantErr: cloak.ErrUserNotFound},
		{name: "non numeric target", actorID: "1", target: "alice", wantErr: cloak.ErrUserNotFound},
		{name: "missing target", actorID: "1", target: " ", wantErr: cloak.ErrMissingTarget},
		{name: "self", actorID: "1", target: "1", wantErr: cloak.ErrCloakSelf},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, newTestConfig())
			actor, _ := f.users.GetByPrimaryKey(ctx, tt.actorID)

			before := cloak.CloakState{CloakedUserID: "3", ReturnLocation: "/keep"}
			state, redirect, err := f.svc.BeginCloak(ctx, before, actor, tt.target, nav)

			assert.True(t, cloak.IsError(err, tt.wantErr), "got %v", err)
			assert.Equal(t, before, state)
			assert.Empty(t, redirect)
		})
	}

	t.Run("unauthenticated", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		_, _, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, nil, "2", nav)
		assert.True(t, cloak.IsError(err, cloak.ErrUnauthenticated))
	})

	t.Run("denial is audited", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())
		alice, _ := f.users.GetByPrimaryKey(ctx, "2")

		_, _, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, alice, "3", nav)
		require.Error(t, err)

		require.Len(t, f.sink.events, 1)
		event := f.sink.events[0]
		assert.Equal(t, cloak.ActivityEventCloakDenied, event.EventType)
		assert.Equal(t, "2", event.ActorID)
		assert.Equal(t, "3", event.TargetID)
	})
}

func TestService_BeginCloakWithPolicy(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, newTestConfig())

	f.svc.WithPolicy(cloak.PolicyFunc(func(_ context.Context, actor, target cloak.Principal) bool {
		return actor.PrincipalID() == "2" && target.PrincipalID() == "3"
	}))

	alice, _ := f.users.GetByPrimaryKey(ctx, "2")
	admin, _ := f.users.GetByPrimaryKey(ctx, "1")

	_, _, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, alice, "3", cloak.Navigation{})
	assert.NoError(t, err)

	_, _, err = f.svc.BeginCloak(ctx, cloak.CloakState{}, admin, "3", cloak.Navigation{})
	assert.True(t, cloak.IsError(err, cloak.ErrCloakForbidden))
}

func TestService_EndCloak(t *testing.T) {
	ctx := context.Background()
	host := "example.com"

	tests := []struct {
		name  string
		state cloak.CloakState
		next  string
		want  string
	}{
		{name: "no active cloak", want: "/dashboard"},
		{name: "stored return location", state: cloak.CloakState{CloakedUserID: "2", ReturnLocation: "/users/"}, want: "/users/"},
		{name: "next wins", state: cloak.CloakState{CloakedUserID: "2", ReturnLocation: "/users/"}, next: "/inbox", want: "/inbox"},
		{name: "same host absolute", state: cloak.CloakState{CloakedUserID: "2", ReturnLocation: "https://example.com/users/"}, want: "https://example.com/users/"},
		{name: "unsafe return location", state: cloak.CloakState{CloakedUserID: "2", ReturnLocation: "https://evil.com/"}, want: "/dashboard"},
		{name: "protocol relative return location", state: cloak.CloakState{CloakedUserID: "2", ReturnLocation: "//evil.com"}, want: "/dashboard"},
		{name: "unsafe next", state: cloak.CloakState{CloakedUserID: "2", ReturnLocation: "/users/"}, next: "https://evil.com/", want: "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, newTestConfig())

			state, redirect := f.svc.EndCloak(ctx, tt.state, nil, cloak.Navigation{Host: host, Next: tt.next})
			assert.Equal(t, cloak.CloakState{}, state)
			assert.Equal(t, tt.want, redirect)
		})
	}

	t.Run("audits only active cloaks", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())

		f.svc.EndCloak(ctx, cloak.CloakState{}, nil, cloak.Navigation{})
		assert.Empty(t, f.sink.Types())

		f.svc.EndCloak(ctx, cloak.CloakState{CloakedUserID: "2"}, nil, cloak.Navigation{})
		assert.Equal(t, []cloak.ActivityEventType{cloak.ActivityEventCloakEnd}, f.sink.Types())
	})

	t.Run("audit names the real principal", func(t *testing.T) {
		f := newServiceFixture(t, newTestConfig())

		admin, err := f.users.GetByPrimaryKey(ctx, "1")
		require.NoError(t, err)

		f.svc.EndCloak(ctx, cloak.CloakState{CloakedUserID: "2"}, admin, cloak.Navigation{})

		require.Len(t, f.sink.events, 1)
		event := f.sink.events[0]
		assert.Equal(t, cloak.ActivityEventCloakEnd, event.EventType)
		assert.Equal(t, "1", event.ActorID)
		assert.Equal(t, "2", event.TargetID)
	})

	t.Run("default redirect falls back to root", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.loginRedirect = ""
		f := newServiceFixture(t, cfg)

		_, redirect := f.svc.EndCloak(ctx, cloak.CloakState{}, nil, cloak.Navigation{})
		assert.Equal(t, "/", redirect)
	})
}

func TestService_ActivitySinkErrorsAreIgnored(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, newTestConfig())
	f.svc.WithActivitySink(cloak.ActivitySinkFunc(func(context.Context, cloak.ActivityEvent) error {
		return errors.New("sink down")
	}))

	admin, _ := f.users.GetByPrimaryKey(ctx, "1")
	_, _, err := f.svc.BeginCloak(ctx, cloak.CloakState{}, admin, "2", cloak.Navigation{})
	assert.NoError(t, err)
}
