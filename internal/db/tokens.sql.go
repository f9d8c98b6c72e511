package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const userTokenColumns = `user_id, provider, access_token, refresh_token, expires_at, updated_at`

func scanUserToken(row *sql.Row) (UserToken, error) {
	var t UserToken
	err := row.Scan(
		&t.UserID,
		&t.Provider,
		&t.AccessToken,
		&t.RefreshToken,
		&t.ExpiresAt,
		&t.UpdatedAt,
	)
	return t, err
}

const getUserToken = `-- name: GetUserToken :one
SELECT ` + userTokenColumns + `
FROM user_tokens
WHERE user_id = $1 AND provider = $2
`

type GetUserTokenParams struct {
	UserID   uuid.UUID
	Provider string
}

func (q *Queries) GetUserToken(ctx context.Context, arg GetUserTokenParams) (UserToken, error) {
	return scanUserToken(q.db.QueryRowContext(ctx, getUserToken, arg.UserID, arg.Provider))
}

const upsertUserToken = `-- name: UpsertUserToken :one
INSERT INTO user_tokens (user_id, provider, access_token, refresh_token, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, provider) DO UPDATE
SET access_token = EXCLUDED.access_token,
    refresh_token = COALESCE(EXCLUDED.refresh_token, user_tokens.refresh_token),
    expires_at = EXCLUDED.expires_at,
    updated_at = now()
RETURNING ` + userTokenColumns

type UpsertUserTokenParams struct {
	UserID       uuid.UUID
	Provider     string
	AccessToken  string
	RefreshToken sql.NullString
	ExpiresAt    sql.NullTime
}

// UpsertUserToken keeps one record per (user, provider). A NULL refresh token
// in the new credentials keeps the stored one.
func (q *Queries) UpsertUserToken(ctx context.Context, arg UpsertUserTokenParams) (UserToken, error) {
	return scanUserToken(q.db.QueryRowContext(ctx, upsertUserToken,
		arg.UserID, arg.Provider, arg.AccessToken, arg.RefreshToken, arg.ExpiresAt))
}

const updateUserTokenCredentials = `-- name: UpdateUserTokenCredentials :one
UPDATE user_tokens
SET access_token = $3,
    refresh_token = $4,
    expires_at = $5,
    updated_at = now()
WHERE user_id = $1 AND provider = $2
RETURNING ` + userTokenColumns

type UpdateUserTokenCredentialsParams struct {
	UserID       uuid.UUID
	Provider     string
	AccessToken  string
	RefreshToken sql.NullString
	ExpiresAt    sql.NullTime
}

func (q *Queries) UpdateUserTokenCredentials(ctx context.Context, arg UpdateUserTokenCredentialsParams) (UserToken, error) {
	return scanUserToken(q.db.QueryRowContext(ctx, updateUserTokenCredentials,
		arg.UserID, arg.Provider, arg.AccessToken, arg.RefreshToken, arg.ExpiresAt))
}
