// Package seen is the durable membership store answering "has this external
// entity already been surfaced". Membership is monotonic: once marked, an id
// is never un-seen, even if its associated action later fails.
package seen

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"outreachd/internal/domain"
)

const timeLayout = "2006-01-02T15:04:05Z"

// EnsureSchema creates the seen_entities table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS seen_entities (
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  first_seen_at TEXT NOT NULL,
  PRIMARY KEY (entity_type, entity_id)
);
`
	_, err := db.Exec(schema)
	return err
}

// Store is the SQLite-backed seen-entity set.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Has reports whether the entity has already been surfaced.
func (s *Store) Has(ctx context.Context, entityType domain.EntityType, entityID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_entities WHERE entity_type = ? AND entity_id = ?`,
		string(entityType), entityID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// Claim marks the entity as surfaced and reports whether this call was the
// one that inserted it. The insert is the check-and-mark critical section
// for one (entity_type, entity_id): of any number of concurrent claimants,
// exactly one sees true.
func (s *Store) Claim(ctx context.Context, entityType domain.EntityType, entityID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_entities (entity_type, entity_id, first_seen_at) VALUES (?, ?, ?)`,
		string(entityType), entityID, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the entity as surfaced. Duplicate marks are no-ops; the
// original first_seen_at is preserved.
func (s *Store) MarkSeen(ctx context.Context, entityType domain.EntityType, entityID string) error {
	_, err := s.Claim(ctx, entityType, entityID)
	return err
}

// Count returns the number of seen entities, scoped to entityType when it is
// non-empty.
func (s *Store) Count(ctx context.Context, entityType domain.EntityType) (int, error) {
	var (
		count int
		err   error
	)
	if entityType == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_entities`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM seen_entities WHERE entity_type = ?`, string(entityType),
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count seen: %w", err)
	}
	return count, nil
}
