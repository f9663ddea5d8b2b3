// Package ledger is the durable, append-oriented record of outbound action
// attempts and their outcomes.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreachd/internal/domain"
)

// timeLayout stores all timestamps as UTC strings so SQLite string
// comparison is chronological.
const timeLayout = "2006-01-02T15:04:05Z"

var ErrInvalidStatus = errors.New("status may only move to succeeded or failed")

// EnsureSchema creates the actions table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS actions (
  id TEXT PRIMARY KEY,
  action_type TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','succeeded','failed')) DEFAULT 'pending',
  error_message TEXT,
  payload BLOB,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_tuple ON actions(action_type, entity_type, entity_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_actions_created ON actions(created_at);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status, created_at);
`
	_, err := db.Exec(schema)
	return err
}

// Store is the SQLite-backed action ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock overrides the time source (useful for testing day boundaries).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// newActionID returns a globally unique, time-sortable id: a zero-padded
// UTC nanosecond prefix keeps lexicographic order chronological, the uuid
// suffix breaks ties.
func newActionID(t time.Time) string {
	return fmt.Sprintf("act_%019d_%s", t.UTC().UnixNano(), uuid.NewString()[:8])
}

// Log appends a new pending record for the given tuple and returns its id.
func (s *Store) Log(ctx context.Context, actionType domain.ActionType, entityType domain.EntityType, entityID string, payload json.RawMessage) (string, error) {
	now := s.now().UTC()
	id := newActionID(now)
	ts := now.Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO actions (id, action_type, entity_type, entity_id, status, error_message, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', NULL, ?, ?, ?)`,
		id, string(actionType), string(entityType), entityID, []byte(payload), ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("insert action: %w", err)
	}
	return id, nil
}

// UpdateStatus transitions a pending record to succeeded or failed and bumps
// updated_at. Unknown ids and already-settled records are silent no-ops; the
// WHERE clause is what enforces status monotonicity.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.ActionStatus, errorMessage *string, payload json.RawMessage) error {
	if status != domain.StatusSucceeded && status != domain.StatusFailed {
		return ErrInvalidStatus
	}
	ts := s.now().UTC().Format(timeLayout)
	var err error
	if payload != nil {
		_, err = s.db.ExecContext(ctx, `
UPDATE actions SET status = ?, error_message = ?, payload = ?, updated_at = ?
WHERE id = ? AND status = 'pending'`,
			string(status), errorMessage, []byte(payload), ts, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx, `
UPDATE actions SET status = ?, error_message = ?, updated_at = ?
WHERE id = ? AND status = 'pending'`,
			string(status), errorMessage, ts, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update action status: %w", err)
	}
	return nil
}

// Latest returns the most recently created record for the tuple, or nil if
// none exists. The id is the tie-breaker within a one-second timestamp.
func (s *Store) Latest(ctx context.Context, actionType domain.ActionType, entityType domain.EntityType, entityID string) (*domain.ActionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, action_type, entity_type, entity_id, status, error_message, payload, created_at, updated_at
FROM actions
WHERE action_type = ? AND entity_type = ? AND entity_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`,
		string(actionType), string(entityType), entityID,
	)
	rec, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CountsByDate aggregates records created on the given UTC calendar day,
// grouped by (action_type, status).
func (s *Store) CountsByDate(ctx context.Context, date time.Time) ([]domain.ActionCount, error) {
	from, to := dayBounds(date)
	rows, err := s.db.QueryContext(ctx, `
SELECT action_type, status, COUNT(*)
FROM actions
WHERE created_at >= ? AND created_at < ?
GROUP BY action_type, status
ORDER BY action_type, status`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []domain.ActionCount
	for rows.Next() {
		var c domain.ActionCount
		var at, st string
		if err := rows.Scan(&at, &st, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		c.ActionType = domain.ActionType(at)
		c.Status = domain.ActionStatus(st)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Pending returns all records still pending that were created on the given
// UTC calendar day, oldest first.
func (s *Store) Pending(ctx context.Context, date time.Time) ([]domain.ActionRecord, error) {
	from, to := dayBounds(date)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, action_type, entity_type, entity_id, status, error_message, payload, created_at, updated_at
FROM actions
WHERE status = 'pending' AND created_at >= ? AND created_at < ?
ORDER BY created_at, id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanActions(rows)
}

// Recent returns the newest records across all tuples, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, action_type, entity_type, entity_id, status, error_message, payload, created_at, updated_at
FROM actions ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanActions(rows)
}

func dayBounds(date time.Time) (string, string) {
	d := date.UTC().Truncate(24 * time.Hour)
	return d.Format(timeLayout), d.Add(24 * time.Hour).Format(timeLayout)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAction(row scannable) (*domain.ActionRecord, error) {
	var r domain.ActionRecord
	var at, et, st, created, updated string
	var errMsg sql.NullString
	var payload []byte
	err := row.Scan(&r.ID, &at, &et, &r.EntityID, &st, &errMsg, &payload, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.ActionType = domain.ActionType(at)
	r.EntityType = domain.EntityType(et)
	r.Status = domain.ActionStatus(st)
	if errMsg.Valid {
		v := errMsg.String
		r.ErrorMessage = &v
	}
	if len(payload) > 0 {
		r.Payload = json.RawMessage(payload)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	r.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &r, nil
}

func scanActions(rows *sql.Rows) ([]domain.ActionRecord, error) {
	var recs []domain.ActionRecord
	for rows.Next() {
		r, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		recs = append(recs, *r)
	}
	return recs, rows.Err()
}
