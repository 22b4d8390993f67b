package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/pursuit/errors"
)

// Leases is the single-flight guard over records. Acquisition is one
// INSERT OR IGNORE, so exactly one caller wins even across processes
// sharing the database. A lease held by a crashed process blocks its
// record until the grace period passes and Reap clears it.
type Leases struct {
	db *sql.DB
}

// NewLeases creates a lease store on an existing database handle.
func NewLeases(db *sql.DB) *Leases {
	return &Leases{db: db}
}

// Acquire attempts to take the record's lease. Returns false when another
// holder already has it.
func (l *Leases) Acquire(ctx context.Context, fingerprint, holder string, now time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO leases (fingerprint, holder, acquired_at)
		VALUES (?, ?, ?)`,
		fingerprint, holder, formatTime(now))
	if err != nil {
		return false, errors.Wrapf(err, "acquire lease for %s", fingerprint)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "lease rows affected")
	}
	return n == 1, nil
}

// Release drops the record's lease if this holder owns it. Releasing a
// lease someone else holds is a no-op, not an error.
func (l *Leases) Release(ctx context.Context, fingerprint, holder string) error {
	_, err := l.db.ExecContext(ctx, `
		DELETE FROM leases WHERE fingerprint = ? AND holder = ?`,
		fingerprint, holder)
	if err != nil {
		return errors.Wrapf(err, "release lease for %s", fingerprint)
	}
	return nil
}

// Reap deletes leases acquired at or before cutoff, returning how many
// were abandoned.
func (l *Leases) Reap(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM leases WHERE acquired_at <= ?`, formatTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "reap leases")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reaped rows affected")
	}
	return int(n), nil
}

// Count returns how many leases are currently held.
func (l *Leases) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leases").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count leases")
	}
	return n, nil
}

// formatTime matches the store convention: RFC3339 in UTC, so SQL string
// comparison orders chronologically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
