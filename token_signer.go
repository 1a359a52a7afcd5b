package cloak

import (
	"crypto/sha256"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// MaxLoginLinkAge is how long a login link stays valid.
const MaxLoginLinkAge = 60 * time.Second

const (
	defaultTokenIssuer   = "go-cloak"
	defaultTokenAudience = "login-link"
	minSigningKeyLength  = 16
	// issuedAtLeeway absorbs clock skew between the issuing and the
	// redeeming instance.
	issuedAtLeeway = time.Second
)

// TokenClaims is the payload of a verified login token.
type TokenClaims struct {
	Subject  string
	IssuedAt time.Time
	TokenID  string
}

// TokenSigner issues and verifies timestamped tokens for a subject.
type TokenSigner struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// SignerOption configures a TokenSigner.
type SignerOption func(*TokenSigner)

// WithSignerClock overrides the clock used to stamp and age tokens.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *TokenSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSignerPurpose binds tokens to a purpose. Tokens issued for one
// purpose do not verify for another even with the same secret.
func WithSignerPurpose(purpose string) SignerOption {
	return func(s *TokenSigner) {
		if purpose != "" {
			s.audience = purpose
		}
	}
}

// NewTokenSigner derives a MAC key from secret and returns a signer.
func NewTokenSigner(secret []byte, opts ...SignerOption) (*TokenSigner, error) {
	if len(secret) < minSigningKeyLength {
		return nil, ErrSigningKeyTooShort
	}

	s := &TokenSigner{
		issuer:   defaultTokenIssuer,
		audience: defaultTokenAudience,
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, secret, []byte(s.issuer), []byte(s.audience))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive signing key")
	}
	s.key = key

	return s, nil
}

// Issue returns a signed token for subject stamped with the current time.
func (s *TokenSigner) Issue(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", ErrEmptySubject
	}

	claims := &jwt.RegisteredClaims{
		Issuer:   s.issuer,
		Subject:  subject,
		Audience: jwt.ClaimStrings{s.audience},
		IssuedAt: jwt.NewNumericDate(s.now()),
		ID:       uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Verify checks the signature of raw and that it is no older than maxAge.
// Verification does not consume the token.
func (s *TokenSigner) Verify(raw string, maxAge time.Duration) (*TokenClaims, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(issuedAtLeeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSignature
	}

	if claims.IssuedAt == nil || claims.Subject == "" {
		return nil, ErrInvalidSignature
	}

	issuedAt := claims.IssuedAt.Time
	if s.now().Sub(issuedAt) > maxAge {
		return nil, ErrSignatureExpired
	}

	return &TokenClaims{
		Subject:  claims.Subject,
		IssuedAt: issuedAt,
		TokenID:  claims.ID,
	}, nil
}
