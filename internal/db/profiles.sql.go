package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const profileColumns = `id, email, full_name, resume_path, email_count, created_at, updated_at`

func scanProfile(row *sql.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.ResumePath,
		&p.EmailCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

const getProfile = `-- name: GetProfile :one
SELECT ` + profileColumns + `
FROM profiles
WHERE id = $1
`

func (q *Queries) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	return scanProfile(q.db.QueryRowContext(ctx, getProfile, id))
}

const ensureProfile = `-- name: EnsureProfile :one
INSERT INTO profiles (id, email, full_name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET email = COALESCE(EXCLUDED.email, profiles.email),
    full_name = COALESCE(profiles.full_name, EXCLUDED.full_name),
    updated_at = now()
RETURNING ` + profileColumns

type EnsureProfileParams struct {
	ID       uuid.UUID
	Email    sql.NullString
	FullName sql.NullString
}

// EnsureProfile creates the profile row for an authenticated user on first
// sight. An existing full_name is never overwritten.
func (q *Queries) EnsureProfile(ctx context.Context, arg EnsureProfileParams) (Profile, error) {
	return scanProfile(q.db.QueryRowContext(ctx, ensureProfile, arg.ID, arg.Email, arg.FullName))
}

const setResumePath = `-- name: SetResumePath :one
UPDATE profiles
SET resume_path = $2, updated_at = now()
WHERE id = $1
RETURNING ` + profileColumns

type SetResumePathParams struct {
	ID         uuid.UUID
	ResumePath sql.NullString
}

func (q *Queries) SetResumePath(ctx context.Context, arg SetResumePathParams) (Profile, error) {
	return scanProfile(q.db.QueryRowContext(ctx, setResumePath, arg.ID, arg.ResumePath))
}

const clearResumePathIfActive = `-- name: ClearResumePathIfActive :execrows
UPDATE profiles
SET resume_path = NULL, updated_at = now()
WHERE id = $1 AND resume_path = $2
`

type ClearResumePathIfActiveParams struct {
	ID         uuid.UUID
	ResumePath string
}

func (q *Queries) ClearResumePathIfActive(ctx context.Context, arg ClearResumePathIfActiveParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, clearResumePathIfActive, arg.ID, arg.ResumePath)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const incrementEmailCount = `-- name: IncrementEmailCount :one
UPDATE profiles
SET email_count = email_count + $2, updated_at = now()
WHERE id = $1
RETURNING email_count
`

type IncrementEmailCountParams struct {
	ID    uuid.UUID
	Count int32
}

// IncrementEmailCount adds Count in a single statement so concurrent
// increments never lose updates.
func (q *Queries) IncrementEmailCount(ctx context.Context, arg IncrementEmailCountParams) (int32, error) {
	var count int32
	err := q.db.QueryRowContext(ctx, incrementEmailCount, arg.ID, arg.Count).Scan(&count)
	return count, err
}

const resetAllEmailCounts = `-- name: ResetAllEmailCounts :execrows
UPDATE profiles
SET email_count = 0, updated_at = now()
WHERE email_count <> 0
`

func (q *Queries) ResetAllEmailCounts(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetAllEmailCounts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertUsageReset = `-- name: InsertUsageReset :one
INSERT INTO usage_resets (period_start, profiles_reset)
VALUES ($1, $2)
ON CONFLICT (period_start) DO NOTHING
RETURNING period_start, profiles_reset, reset_at
`

type InsertUsageResetParams struct {
	PeriodStart   time.Time
	ProfilesReset int64
}

// InsertUsageReset returns sql.ErrNoRows when the period was already recorded.
func (q *Queries) InsertUsageReset(ctx context.Context, arg InsertUsageResetParams) (UsageReset, error) {
	var r UsageReset
	err := q.db.QueryRowContext(ctx, insertUsageReset, arg.PeriodStart, arg.ProfilesReset).
		Scan(&r.PeriodStart, &r.ProfilesReset, &r.ResetAt)
	return r, err
}

const getLatestUsageReset = `-- name: GetLatestUsageReset :one
SELECT period_start, profiles_reset, reset_at
FROM usage_resets
ORDER BY period_start DESC
LIMIT 1
`

func (q *Queries) GetLatestUsageReset(ctx context.Context) (UsageReset, error) {
	var r UsageReset
	err := q.db.QueryRowContext(ctx, getLatestUsageReset).
		Scan(&r.PeriodStart, &r.ProfilesReset, &r.ResetAt)
	return r, err
}
