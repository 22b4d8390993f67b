package calendar

import (
	"database/sql"
	"time"

	"github.com/teranos/pursuit/errors"
)

// Store caches calendar commitments in SQLite so slot search keeps working
// between transport refreshes and across restarts.
type Store struct {
	db *sql.DB
}

// NewStore creates a commitment cache backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Replace swaps the cached commitment set for a fresh snapshot from the
// calendar transport. The swap is transactional; readers never observe a
// half-replaced cache.
func (s *Store) Replace(commitments []Commitment, refreshedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin cache replace")
	}

	if _, err := tx.Exec("DELETE FROM calendar_cache"); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "clear calendar cache")
	}

	insert := `
		INSERT INTO calendar_cache (id, start_at, end_at, participant, summary, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, c := range commitments {
		_, err := tx.Exec(insert,
			c.ID,
			c.Start.UTC().Format(time.RFC3339),
			c.End.UTC().Format(time.RFC3339),
			c.Participant,
			c.Summary,
			refreshedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "cache commitment %s", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit cache replace")
	}
	return nil
}

// Add appends one commitment to the cache, used after a successful booking
// so the new interview blocks later slot searches without a full refresh.
func (s *Store) Add(c Commitment, refreshedAt time.Time) error {
	query := `
		INSERT OR REPLACE INTO calendar_cache (id, start_at, end_at, participant, summary, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		c.ID,
		c.Start.UTC().Format(time.RFC3339),
		c.End.UTC().Format(time.RFC3339),
		c.Participant,
		c.Summary,
		refreshedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "cache commitment %s", c.ID)
	}
	return nil
}

// Commitments returns the cached commitment set ordered by start time.
func (s *Store) Commitments() ([]Commitment, error) {
	rows, err := s.db.Query(`
		SELECT id, start_at, end_at, participant, summary
		FROM calendar_cache
		ORDER BY start_at ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query calendar cache")
	}
	defer rows.Close()

	var out []Commitment
	for rows.Next() {
		var c Commitment
		var startAt, endAt string
		if err := rows.Scan(&c.ID, &startAt, &endAt, &c.Participant, &c.Summary); err != nil {
			return nil, errors.Wrap(err, "scan cached commitment")
		}
		c.Start, err = time.Parse(time.RFC3339, startAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse start_at for commitment %s", c.ID)
		}
		c.End, err = time.Parse(time.RFC3339, endAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse end_at for commitment %s", c.ID)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastRefresh returns when the cache was last replaced, or the zero time
// for an empty cache.
func (s *Store) LastRefresh() (time.Time, error) {
	var refreshedAt sql.NullString
	err := s.db.QueryRow("SELECT MAX(refreshed_at) FROM calendar_cache").Scan(&refreshedAt)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "query cache refresh time")
	}
	if !refreshedAt.Valid {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, refreshedAt.String)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse cache refresh time")
	}
	return t, nil
}
