package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `internal_id, wamid, msg_id, from_id, wa_id, name, timestamp, body, message_type, status`

func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.ProviderID != "" {
		conds = append(conds, "wamid = ?")
		args = append(args, f.ProviderID)
	}
	if f.ContactID != "" {
		conds = append(conds, "wa_id = ?")
		args = append(args, f.ContactID)
	}
	if f.ContactName != "" {
		conds = append(conds, "name = ?")
		args = append(args, f.ContactName)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var ts float64
	err := row.Scan(&m.InternalID, &m.ProviderID, &m.ID, &m.From, &m.ContactID, &m.ContactName,
		&ts, &m.Text.Body, &m.Type, &m.Status)
	m.Timestamp = Timestamp(ts)
	return m, err
}

// Find returns matching messages in insertion order.
func (db *DB) Find(ctx context.Context, f Filter) ([]Message, error) {
	where, args := whereClause(f)
	rows, err := db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, unavailable("find", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, unavailable("find", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find", err)
	}
	return msgs, nil
}

// FindOne returns the first matching message, or nil if none.
func (db *DB) FindOne(ctx context.Context, f Filter) (*Message, error) {
	where, args := whereClause(f)
	m, err := scanMessage(db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages`+where+` ORDER BY rowid LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find one", err)
	}
	return &m, nil
}

// Insert stores m if no message with the same provider id exists.
// It assigns m.InternalID when empty and returns ErrDuplicate on conflict.
func (db *DB) Insert(ctx context.Context, m *Message) error {
	internalID := m.InternalID
	if internalID == "" {
		internalID = uuid.NewString()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wamid) DO NOTHING`,
		internalID, m.ProviderID, m.ID, m.From, m.ContactID, m.ContactName,
		float64(m.Timestamp), m.Text.Body, m.Type, string(m.Status), time.Now().UnixMilli())
	if err != nil {
		return unavailable("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("insert", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	m.InternalID = internalID
	return nil
}

// UpdateOne applies p to the first matching message.
func (db *DB) UpdateOne(ctx context.Context, f Filter, p Patch) (bool, error) {
	where, args := whereClause(f)
	if where == "" {
		return false, nil
	}
	res, err := db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE rowid = (SELECT rowid FROM messages`+where+` ORDER BY rowid LIMIT 1)`,
		append([]any{string(p.Status)}, args...)...)
	if err != nil {
		return false, unavailable("update one", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("update one", err)
	}
	return n > 0, nil
}

// Count returns the total number of messages.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, unavailable("count", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
