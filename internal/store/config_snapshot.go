package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
)

// PutConfigSnapshot records the configuration applied at a point in time.
// config.json (written by internal/config) remains the single authoritative
// value; this table only keeps a history of what was live when, independent
// of file edits made outside the running process.
func (s *Store) PutConfigSnapshot(ctx context.Context, configJSON string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO config (config_json, saved_at_ms) VALUES (?, ?)", configJSON, timeToMS(time.Now().UTC()))
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "insert config snapshot", err)
	}
	return nil
}

// LatestConfigSnapshot returns the most recently applied configuration JSON,
// or ("", false, nil) if none has been recorded yet.
func (s *Store) LatestConfigSnapshot(ctx context.Context) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM config ORDER BY id DESC LIMIT 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindStorageIO, "read config snapshot", err)
	}
	return raw, true, nil
}
