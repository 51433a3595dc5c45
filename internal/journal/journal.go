// Package journal keeps an optional audit trail of delivery outcomes.
//
// Each row records who asked for what log type, how large the body was and how
// the collector answered. Payload bodies are never written.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the final state of a delivery.
type Status string

const (
	// StatusDelivered means the collector answered 2xx.
	StatusDelivered Status = "delivered"
	// StatusRejected means the request never reached the collector (bad payload or label).
	StatusRejected Status = "rejected"
	// StatusFailed means the outbound call failed or returned non-2xx.
	StatusFailed Status = "failed"
)

// Entry is one delivery outcome.
type Entry struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	LogType       string    `json:"log_type"`
	ContentLength int       `json:"content_length"`
	Status        Status    `json:"status"`
	StatusCode    int       `json:"status_code"`
	Error         string    `json:"error,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Journal stores entries in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts e, assigning an ID and timestamps when unset. It returns the ID.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = now
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO delivery_log(id, request_id, log_type, content_length, status, status_code, error, received_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID,
		nullString(e.RequestID),
		e.LogType,
		e.ContentLength,
		string(e.Status),
		e.StatusCode,
		nullString(e.Error),
		e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert delivery: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, request_id, log_type, content_length, status, status_code, error, received_at, completed_at
FROM delivery_log
ORDER BY completed_at DESC, id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                     Entry
			status                string
			requestID, errText    sql.NullString
			receivedAt, completed string
		)
		if err := rows.Scan(&e.ID, &requestID, &e.LogType, &e.ContentLength, &status, &e.StatusCode, &errText, &receivedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		e.Status = Status(status)
		e.RequestID = requestID.String
		e.Error = errText.String
		if e.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

// Prune deletes entries completed more than retention ago and returns how many.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `DELETE FROM delivery_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
