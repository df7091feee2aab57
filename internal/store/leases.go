package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
)

// GuardLockKey is the well-known lease key used to enforce a single active
// daemon instance against one database file.
const GuardLockKey = "system:guard_lock"

type sqliteLease struct {
	key     string
	owner   string
	expires time.Time
}

func (l *sqliteLease) Key() string          { return l.key }
func (l *sqliteLease) Owner() string        { return l.owner }
func (l *sqliteLease) ExpiresAt() time.Time { return l.expires }

// TryAcquireLease attempts to claim key for owner. It succeeds if no lease
// exists, the existing lease has expired, or owner already holds it
// (renewal). Used both for the single-instance guard lock and for
// per-session analysis/video-synthesis exclusivity.
func (s *Store) TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindStorageIO, "begin lease transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	expiresAt := now.Add(ttl)

	var currentOwner string
	var currentExpiresMS int64
	err = tx.QueryRowContext(ctx, "SELECT owner, expires_at_ms FROM leases WHERE key = ?", key).Scan(&currentOwner, &currentExpiresMS)
	switch {
	case err == nil:
		if msToTime(currentExpiresMS).After(now) && currentOwner != owner {
			return &sqliteLease{key: key, owner: currentOwner, expires: msToTime(currentExpiresMS)}, false, nil
		}
	case errors.Is(err, sql.ErrNoRows):
		// no existing lease, fall through to claim
	default:
		return nil, false, apperr.Wrap(apperr.KindStorageIO, "read lease", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO leases (key, owner, expires_at_ms) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, expires_at_ms = excluded.expires_at_ms",
		key, owner, timeToMS(expiresAt),
	); err != nil {
		return nil, false, apperr.Wrap(apperr.KindStorageIO, "write lease", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, apperr.Wrap(apperr.KindStorageIO, "commit lease", err)
	}

	return &sqliteLease{key: key, owner: owner, expires: expiresAt}, true, nil
}

// RenewLease extends an owned lease; it is implemented as a re-acquire since
// the acquire path already treats same-owner claims as a renewal.
func (s *Store) RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	return s.TryAcquireLease(ctx, key, owner, ttl)
}

// ReleaseLease drops a lease iff owner currently holds it.
func (s *Store) ReleaseLease(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM leases WHERE key = ? AND owner = ?", key, owner)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "release lease", err)
	}
	return nil
}

// DeleteAllLeases wipes every lease row except exceptKey, used at startup once the guard
// lock for this process has been (re)established, mirroring a clean restart
// after an unclean shutdown left stale leases behind.
func (s *Store) DeleteAllLeases(ctx context.Context, exceptKey string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM leases WHERE key != ?", exceptKey)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorageIO, "delete leases", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
