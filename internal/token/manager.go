// Package token keeps a user's Gmail OAuth credentials usable.
//
// A stored record is in one of four states:
//
//	VALID            expiry unknown or in the future
//	EXPIRED          expiry passed, refresh token present
//	REFRESHING       exchange of the refresh token in flight
//	REAUTH_REQUIRED  expiry passed with no refresh token, or refresh failed
//
// EnsureValidToken drives a record from EXPIRED through REFRESHING back to
// VALID, persisting the new credentials before it returns.
package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/nyashahama/smartsendr-backend/internal/db"
)

// State is the lifecycle position of a stored token record.
type State int

const (
	StateValid State = iota
	StateExpired
	StateRefreshing
	StateReauthRequired
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	case StateReauthRequired:
		return "reauth_required"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrReauthRequired means the user must redo the Gmail consent flow.
	ErrReauthRequired = errors.New("token: reauthorization required")

	// ErrNotConnected means no Gmail credentials were ever stored. It matches
	// ErrReauthRequired under errors.Is.
	ErrNotConnected = fmt.Errorf("%w: gmail not connected", ErrReauthRequired)

	// ErrNoRefreshToken is returned by Refresh when the record cannot be
	// refreshed explicitly.
	ErrNoRefreshToken = errors.New("token: no refresh token stored")
)

// DefaultLifetime is assumed when the provider omits an expiry.
const DefaultLifetime = time.Hour

// expiryLeeway treats tokens about to expire as expired so they do not lapse
// halfway through a batch.
const expiryLeeway = time.Minute

// Scopes requested during the Gmail consent flow.
var Scopes = []string{gmail.GmailSendScope}

// Config holds the Google OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthConfig builds the oauth2 client configuration for Google.
func (c Config) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// Manager reads, refreshes and persists Gmail tokens.
type Manager struct {
	q      db.Querier
	oauth  *oauth2.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a Manager that refreshes through oauthCfg.
func NewManager(q db.Querier, oauthCfg *oauth2.Config, logger *slog.Logger) *Manager {
	return &Manager{q: q, oauth: oauthCfg, logger: logger, now: time.Now}
}

// Classify reports the state of rec at now without touching the network.
func Classify(rec db.UserToken, now time.Time) State {
	if !rec.ExpiresAt.Valid || rec.ExpiresAt.Time.After(now.Add(expiryLeeway)) {
		return StateValid
	}
	if !rec.RefreshToken.Valid || rec.RefreshToken.String == "" {
		return StateReauthRequired
	}
	return StateExpired
}

// EnsureValidToken returns a usable access token for userID, refreshing it
// once when expired. It fails with ErrNotConnected when nothing is stored and
// with ErrReauthRequired when the record cannot be brought back to VALID.
func (m *Manager) EnsureValidToken(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	rec, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch Classify(rec, m.now()) {
	case StateValid:
		return toOAuth(rec), nil
	case StateReauthRequired:
		m.logger.Info("token: expired without refresh token", "user_id", userID)
		return nil, ErrReauthRequired
	}

	tok, err := m.refresh(ctx, rec)
	if err != nil {
		m.logger.Warn("token: refresh failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	return tok, nil
}

// Refresh exchanges the stored refresh token regardless of expiry.
func (m *Manager) Refresh(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	rec, err := m.load(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return nil, ErrNoRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if !rec.RefreshToken.Valid || rec.RefreshToken.String == "" {
		return nil, ErrNoRefreshToken
	}
	return m.refresh(ctx, rec)
}

// AuthCodeURL returns the Google consent URL. Offline access with a forced
// prompt makes Google issue a refresh token on every consent.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges an authorization code and stores the resulting
// credentials for userID.
func (m *Manager) Connect(ctx context.Context, userID uuid.UUID, code string) (*oauth2.Token, error) {
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token: exchange code: %w", err)
	}
	if err := m.Save(ctx, userID, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Save upserts tok as the user's Google credentials.
func (m *Manager) Save(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) error {
	_, err := m.q.UpsertUserToken(ctx, db.UpsertUserTokenParams{
		UserID:       userID,
		Provider:     db.ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: sql.NullString{String: tok.RefreshToken, Valid: tok.RefreshToken != ""},
		ExpiresAt:    sql.NullTime{Time: m.expiryOf(tok), Valid: true},
	})
	if err != nil {
		return fmt.Errorf("token: upsert: %w", err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, userID uuid.UUID) (db.UserToken, error) {
	rec, err := m.q.GetUserToken(ctx, db.GetUserTokenParams{
		UserID:   userID,
		Provider: db.ProviderGoogle,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return db.UserToken{}, ErrNotConnected
	}
	if err != nil {
		return db.UserToken{}, fmt.Errorf("token: load: %w", err)
	}
	return rec, nil
}

// refresh is the REFRESHING state: exchange, then persist before returning.
func (m *Manager) refresh(ctx context.Context, rec db.UserToken) (*oauth2.Token, error) {
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken.String})
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token: refresh: %w", err)
	}
	if fresh.AccessToken == "" {
		return nil, errors.New("token: refresh returned no access token")
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rec.RefreshToken.String
	}
	fresh.Expiry = m.expiryOf(fresh)

	if _, err := m.q.UpdateUserTokenCredentials(ctx, db.UpdateUserTokenCredentialsParams{
		UserID:       rec.UserID,
		Provider:     rec.Provider,
		AccessToken:  fresh.AccessToken,
		RefreshToken: sql.NullString{String: fresh.RefreshToken, Valid: true},
		ExpiresAt:    sql.NullTime{Time: fresh.Expiry, Valid: true},
	}); err != nil {
		return nil, fmt.Errorf("token: persist refreshed credentials: %w", err)
	}

	m.logger.Info("token: refreshed", "user_id", rec.UserID, "expires_at", fresh.Expiry)
	return fresh, nil
}

func (m *Manager) expiryOf(tok *oauth2.Token) time.Time {
	if tok.Expiry.IsZero() {
		return m.now().Add(DefaultLifetime)
	}
	return tok.Expiry
}

func toOAuth(rec db.UserToken) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken.String,
		TokenType:    "Bearer",
	}
	if rec.ExpiresAt.Valid {
		tok.Expiry = rec.ExpiresAt.Time
	}
	return tok
}
