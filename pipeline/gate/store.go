package gate

import (
	"database/sql"
	"time"

	"github.com/teranos/pursuit/errors"
)

// Store persists grant events so gate windows survive restarts. Rows in
// gate_events are append-only between prunes; the in-memory window is
// authoritative once loaded.
type Store struct {
	db *sql.DB
}

// NewStore creates a gate event store on an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append records one grant.
func (s *Store) Append(destination string, grantedAt time.Time, fingerprint string) error {
	_, err := s.db.Exec(`
		INSERT INTO gate_events (destination, granted_at, fingerprint)
		VALUES (?, ?, ?)`,
		destination, formatTime(grantedAt), fingerprint,
	)
	if err != nil {
		return errors.Wrapf(err, "append gate event for %s", destination)
	}
	return nil
}

// EventsSince returns grant times for a destination newer than cutoff,
// ascending. Grants at exactly cutoff have already slid out.
func (s *Store) EventsSince(destination string, cutoff time.Time) ([]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT granted_at FROM gate_events
		WHERE destination = ? AND granted_at > ?
		ORDER BY granted_at ASC`,
		destination, formatTime(cutoff),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "load gate events for %s", destination)
	}
	defer rows.Close()

	var grants []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan gate event")
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse gate event time %q", raw)
		}
		grants = append(grants, t)
	}
	return grants, rows.Err()
}

// Prune deletes events at or before cutoff for a destination.
func (s *Store) Prune(destination string, cutoff time.Time) error {
	_, err := s.db.Exec(`
		DELETE FROM gate_events
		WHERE destination = ? AND granted_at <= ?`,
		destination, formatTime(cutoff),
	)
	if err != nil {
		return errors.Wrapf(err, "prune gate events for %s", destination)
	}
	return nil
}

// formatTime renders a timestamp the way every pursuit table stores them,
// RFC3339 in UTC, so SQL string comparison orders chronologically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
