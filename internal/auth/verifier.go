// Package auth provides JWT issuance and verification.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication failure taxonomy. The router maps these to 401 responses
// with distinct machine-readable codes; Expired must stay distinguishable
// from BadSignature so clients can refresh instead of re-login.
var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
	ErrUnknownSubject = errors.New("unknown subject")
)

// Identity is what a verified token asserts about the caller. It is derived
// fresh per request and never persisted; the resource owner field is the
// source of truth for authorization.
type Identity struct {
	Subject   string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenType string // access or refresh
}

type claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens offline. The secret is loaded once
// at startup and is read-only for the process lifetime.
type Verifier struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewVerifier builds a Verifier. Secret must be non-empty.
func NewVerifier(secret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &Verifier{
		secret:     secret,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// BearerToken extracts the compact token from an Authorization header value.
// An empty, non-Bearer, or otherwise malformed header means no credential was
// presented at all, so every extraction failure is ErrMissingToken; only a
// token that fails to parse is malformed.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// Verify checks structure, signature, issuer, audience and expiry, in that
// trust order, and returns the identity from verified claims only.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, mapParseError(err)
	}
	if !tok.Valid || c.Subject == "" {
		return Identity{}, ErrMalformedToken
	}
	id := Identity{
		Subject:   c.Subject,
		Email:     c.Email,
		Role:      c.Role,
		TokenType: c.TokenType,
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		// Issuer/audience/nbf mismatches are treated as invalid, not expired.
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
}

// Issue mints an access/refresh token pair for a subject. Used by the login
// and register flows; verification never round-trips to an identity service.
func (v *Verifier) Issue(subject, email, role string) (access, refresh string, expiresAt time.Time, err error) {
	now := v.now()
	expiresAt = now.Add(v.accessTTL)
	access, err = v.sign(subject, email, role, "access", now, expiresAt)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, err = v.sign(subject, email, role, "refresh", now, now.Add(v.refreshTTL))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expiresAt, nil
}

func (v *Verifier) sign(subject, email, role, typ string, now, exp time.Time) (string, error) {
	c := claims{
		Email:     email,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
