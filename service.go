package cloak

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const defaultLoginRedirectURL = "/"

// Service issues and redeems login links and starts and ends cloaks.
type Service struct {
	directory     UserDirectory
	signer        *TokenSigner
	policy        AuthorizationPolicy
	authenticator Authenticator
	cfg           Config
	logger        Logger
	activitySink  ActivitySink
	replayGuard   ReplayGuard
}

// NewService returns a Service signing login links with the configured
// signing key.
func NewService(dir UserDirectory, cfg Config) (*Service, error) {
	if dir == nil {
		return nil, errors.New("user directory is required", errors.CategoryBadInput)
	}
	if cfg == nil {
		return nil, errors.New("config is required", errors.CategoryBadInput)
	}

	signer, err := NewTokenSigner([]byte(cfg.GetSigningKey()))
	if err != nil {
		return nil, err
	}

	return &Service{
		directory:     dir,
		signer:        signer,
		policy:        DefaultPolicy{},
		authenticator: SessionAuthenticator{Backend: cfg.GetAuthBackend()},
		cfg:           cfg,
		logger:        defLogger{},
		activitySink:  noopActivitySink{},
	}, nil
}

func (s *Service) WithLogger(logger Logger) *Service {
	s.logger = normalizeLogger(logger)
	return s
}

// WithPolicy replaces the default authorization policy.
func (s *Service) WithPolicy(policy AuthorizationPolicy) *Service {
	s.policy = normalizePolicy(policy)
	return s
}

// WithAuthenticator replaces the session based authenticator used when
// redeeming login links.
func (s *Service) WithAuthenticator(a Authenticator) *Service {
	if a != nil {
		s.authenticator = a
	}
	return s
}

// WithActivitySink configures an ActivitySink for cloak events.
func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithReplayGuard makes login links single use.
func (s *Service) WithReplayGuard(guard ReplayGuard) *Service {
	s.replayGuard = guard
	return s
}

// WithSigner replaces the token signer, mostly useful to inject a clock.
func (s *Service) WithSigner(signer *TokenSigner) *Service {
	if signer != nil {
		s.signer = signer
	}
	return s
}

// Directory returns the user directory backing the service.
func (s *Service) Directory() UserDirectory {
	return s.directory
}

// Overlay returns an IdentityOverlay sharing the service directory and
// policy.
func (s *Service) Overlay() *IdentityOverlay {
	return NewIdentityOverlay(s.directory, s.policy).WithLogger(s.logger)
}

// ResolveLoginTarget picks the principal a login link is issued for. An
// empty identifier selects the first superuser, staff member or user.
func (s *Service) ResolveLoginTarget(ctx context.Context, identifier string) (Principal, error) {
	if strings.TrimSpace(identifier) == "" {
		return DefaultLoginTarget(ctx, s.directory)
	}
	return ResolvePrincipal(ctx, s.directory, identifier)
}

// IssueLoginLink returns a URL that logs its bearer in as target.
func (s *Service) IssueLoginLink(ctx context.Context, target Principal) (string, error) {
	if target == nil {
		return "", ErrUserNotFound
	}

	token, err := s.signer.Issue(target.PrincipalID())
	if err != nil {
		s.logger.Error("login link signing failed", "error", err)
		return "", err
	}

	s.emit(ctx, ActivityEventLoginLinkIssued, "", target.PrincipalID(), nil)

	return s.LoginURL(token), nil
}

// LoginURL builds the redemption URL for token.
func (s *Service) LoginURL(token string) string {
	base := strings.TrimRight(s.cfg.GetBaseURL(), "/")
	return base + normalizePrefix(s.cfg.GetRoutePrefix()) + "/login/" + token
}

// RedeemLoginLink verifies token and establishes a session for its
// subject in store. It returns the principal and the location to
// redirect to.
func (s *Service) RedeemLoginLink(ctx context.Context, store SessionStore, token string) (Principal, string, error) {
	maxAge := s.maxAge()

	claims, err := s.signer.Verify(token, maxAge)
	if err != nil {
		s.logger.Info("login link rejected", "error", err)
		s.emit(ctx, ActivityEventLoginLinkRejected, "", "", map[string]any{"error": err.Error()})
		return nil, "", err
	}

	if s.replayGuard != nil {
		fresh, err := s.replayGuard.Consume(ctx, claims.TokenID, maxAge)
		if err != nil {
			s.logger.Error("login link replay guard failed", "error", err)
			return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to record login link use")
		}
		if !fresh {
			s.logger.Warn("login link replayed", "subject", claims.Subject, "jti", claims.TokenID)
			s.emit(ctx, ActivityEventLoginLinkRejected, "", claims.Subject, map[string]any{"error": ErrTokenReplayed.Error()})
			return nil, "", ErrTokenReplayed
		}
	}

	principal, err := s.lookup(ctx, claims.Subject)
	if err != nil {
		return nil, "", err
	}

	if err := s.authenticator.EstablishSession(ctx, store, principal); err != nil {
		s.logger.Error("login link failed to establish session", "error", err)
		return nil, "", err
	}

	s.emit(ctx, ActivityEventLoginLinkRedeemed, principal.PrincipalID(), principal.PrincipalID(), map[string]any{
		"issued_at": claims.IssuedAt.Format(time.RFC3339),
	})

	return principal, s.defaultRedirect(), nil
}

// BeginCloak authorizes actor to cloak as targetID and returns the new
// state with the location to redirect to. On error state is returned
// unchanged. Re-targeting an active cloak overwrites it.
func (s *Service) BeginCloak(ctx context.Context, state CloakState, actor Principal, targetID string, nav Navigation) (CloakState, string, error) {
	if actor == nil {
		return state, "", ErrUnauthenticated
	}

	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return state, "", ErrMissingTarget
	}

	target, err := s.lookup(ctx, targetID)
	if err != nil {
		return state, "", err
	}

	if SamePrincipal(actor, target) {
		s.emit(ctx, ActivityEventCloakDenied, actor.PrincipalID(), target.PrincipalID(), map[string]any{
			"error": ErrCloakSelf.Error(),
		})
		return state, "", ErrCloakSelf
	}

	if !s.policy.CanCloakAs(ctx, actor, target) {
		s.logger.Info("cloak denied", "actor", actor.PrincipalID(), "target", target.PrincipalID())
		s.emit(ctx, ActivityEventCloakDenied, actor.PrincipalID(), target.PrincipalID(), map[string]any{
			"error": ErrCloakForbidden.Error(),
		})
		return state, "", ErrCloakForbidden
	}

	returnLocation := nav.Referer
	if returnLocation == "" {
		returnLocation = s.defaultRedirect()
	}

	next := CloakState{
		CloakedUserID:  target.PrincipalID(),
		ReturnLocation: returnLocation,
	}

	s.emit(ctx, ActivityEventCloakBegin, actor.PrincipalID(), target.PrincipalID(), map[string]any{
		"previous": state.CloakedUserID,
	})

	return next, pickRedirect(nav.Host, s.defaultRedirect(), nav.Next), nil
}

// EndCloak clears state and returns the location to redirect to: the
// next parameter, else the stored return location, else the default.
// Unsafe locations fall back to the default. Ending without an active
// cloak is not an error. actor is the authenticated principal, recorded
// in the audit event; it may be nil.
func (s *Service) EndCloak(ctx context.Context, state CloakState, actor Principal, nav Navigation) (CloakState, string) {
	redirect := pickRedirect(nav.Host, s.defaultRedirect(), nav.Next, state.ReturnLocation)

	if state.Active() {
		actorID := ""
		if actor != nil {
			actorID = actor.PrincipalID()
		}
		s.emit(ctx, ActivityEventCloakEnd, actorID, state.CloakedUserID, map[string]any{
			"redirect": redirect,
		})
	}

	return CloakState{}, redirect
}

func (s *Service) lookup(ctx context.Context, id string) (Principal, error) {
	p, err := s.directory.GetByPrimaryKey(ctx, id)
	if err != nil {
		if IsError(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("user lookup failed", "id", id, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if p == nil {
		return nil, ErrUserNotFound
	}
	return p, nil
}

func (s *Service) maxAge() time.Duration {
	if age := s.cfg.GetLoginLinkMaxAge(); age > 0 {
		return age
	}
	return MaxLoginLinkAge
}

func (s *Service) defaultRedirect() string {
	if u := s.cfg.GetLoginRedirectURL(); u != "" {
		return u
	}
	return defaultLoginRedirectURL
}

func (s *Service) emit(ctx context.Context, eventType ActivityEventType, actorID, targetID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		ActorID:    actorID,
		TargetID:   targetID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err, "event", print.MaybePrettyJSON(event))
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}
