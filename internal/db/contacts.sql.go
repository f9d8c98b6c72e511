package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const contactColumns = `id, user_id, name, email, company, created_at, sent_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var c Contact
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.Email,
		&c.Company,
		&c.CreatedAt,
		&c.SentAt,
	)
	return c, err
}

func (q *Queries) queryContacts(ctx context.Context, query string, args ...any) ([]Contact, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// uuidStrings converts ids for pq.Array; the query casts back to uuid[].
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

const getContact = `-- name: GetContact :one
SELECT ` + contactColumns + `
FROM contacts
WHERE id = $1 AND user_id = $2
`

type GetContactParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) GetContact(ctx context.Context, arg GetContactParams) (Contact, error) {
	return scanContact(q.db.QueryRowContext(ctx, getContact, arg.ID, arg.UserID))
}

const getContactsByIDs = `-- name: GetContactsByIDs :many
SELECT ` + contactColumns + `
FROM contacts
WHERE user_id = $1 AND id = ANY($2::uuid[])
`

type GetContactsByIDsParams struct {
	UserID uuid.UUID
	IDs    []uuid.UUID
}

// GetContactsByIDs returns the caller's contacts among IDs in no particular
// order. IDs owned by other users are silently absent.
func (q *Queries) GetContactsByIDs(ctx context.Context, arg GetContactsByIDsParams) ([]Contact, error) {
	return q.queryContacts(ctx, getContactsByIDs, arg.UserID, pq.Array(uuidStrings(arg.IDs)))
}

const listContacts = `-- name: ListContacts :many
SELECT ` + contactColumns + `
FROM contacts
WHERE user_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListContacts(ctx context.Context, userID uuid.UUID) ([]Contact, error) {
	return q.queryContacts(ctx, listContacts, userID)
}

const createContact = `-- name: CreateContact :one
INSERT INTO contacts (user_id, name, email, company)
VALUES ($1, $2, $3, $4)
RETURNING ` + contactColumns

type CreateContactParams struct {
	UserID  uuid.UUID
	Name    string
	Email   string
	Company sql.NullString
}

func (q *Queries) CreateContact(ctx context.Context, arg CreateContactParams) (Contact, error) {
	return scanContact(q.db.QueryRowContext(ctx, createContact, arg.UserID, arg.Name, arg.Email, arg.Company))
}

const markContactsSent = `-- name: MarkContactsSent :execrows
UPDATE contacts
SET sent_at = $3
WHERE user_id = $1 AND id = ANY($2::uuid[])
`

type MarkContactsSentParams struct {
	UserID uuid.UUID
	IDs    []uuid.UUID
	SentAt time.Time
}

func (q *Queries) MarkContactsSent(ctx context.Context, arg MarkContactsSentParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markContactsSent, arg.UserID, pq.Array(uuidStrings(arg.IDs)), arg.SentAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
