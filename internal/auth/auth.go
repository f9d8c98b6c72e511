// Package auth verifies Supabase session tokens and signs the short-lived
// state parameter of the Gmail consent flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// audienceSession is the audience Supabase puts in user access tokens.
const audienceSession = "authenticated"

// audienceOAuthState marks tokens minted for the Google consent round trip.
const audienceOAuthState = "gmail-oauth-state"

// Claims is the subset of the Supabase access token the backend reads.
type Claims struct {
	Email        string       `json:"email,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// UserMetadata carries profile fields set at sign-up.
type UserMetadata struct {
	FullName string `json:"full_name,omitempty"`
}

// User is the authenticated caller.
type User struct {
	ID       uuid.UUID
	Email    string
	FullName string
}

// Verifier checks HS256 tokens signed with the project's JWT secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses a session access token.
func (v *Verifier) Verify(tokenString string) (User, error) {
	claims, err := v.parse(tokenString, audienceSession)
	if err != nil {
		return User{}, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return User{ID: id, Email: claims.Email, FullName: claims.UserMetadata.FullName}, nil
}

// Issue signs a session token. Used by tooling and tests; production tokens
// come from Supabase.
func (v *Verifier) Issue(u User, ttl time.Duration) (string, error) {
	return v.sign(Claims{
		Email:            u.Email,
		UserMetadata:     UserMetadata{FullName: u.FullName},
		RegisteredClaims: v.registered(u.ID, audienceSession, ttl),
	})
}

// SignState returns the state value for the consent redirect of userID.
func (v *Verifier) SignState(userID uuid.UUID, ttl time.Duration) (string, error) {
	return v.sign(Claims{RegisteredClaims: v.registered(userID, audienceOAuthState, ttl)})
}

// ParseState returns the user a state value was issued for.
func (v *Verifier) ParseState(state string) (uuid.UUID, error) {
	claims, err := v.parse(state, audienceOAuthState)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return id, nil
}

func (v *Verifier) registered(userID uuid.UUID, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := v.now()
	return jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (v *Verifier) sign(c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return s, nil
}

func (v *Verifier) parse(tokenString, audience string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(tok), nil
}

// ─── CONTEXT ──────────────────────────────────────────────────────────────────

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user stored by WithUser.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}
