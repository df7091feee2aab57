package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/persistence/sqlite"
	"github.com/rs/zerolog"
)

const schemaVersion = 1

// Store is the single writer of persistent state: frames, sessions, tags,
// timeline cards, the LLM call audit log, and leases. Readers use the
// connection pool directly; cross-table edits run inside one transaction.
type Store struct {
	db        *sql.DB
	framesDir string
	videosDir string
	logger    zerolog.Logger
}

// Open opens (creating if absent) the SQLite database at dbPath, runs
// pending migrations, verifies integrity, and reconciles rows against the
// filesystem. framesRoot/videosRoot are the roots frame and video paths are
// stored relative to.
func Open(ctx context.Context, dbPath, framesRoot, videosRoot string) (*Store, error) {
	if results, err := sqlite.VerifyIntegrity(dbPath, "quick"); err != nil {
		// A missing file is not corruption — sqlite.Open below creates it.
		if !errors.Is(err, os.ErrNotExist) && !fileMissing(dbPath) {
			return nil, apperr.Wrap(apperr.KindDatabaseCorrupt, "integrity check failed to run", err)
		}
	} else if len(results) > 0 {
		return nil, apperr.New(apperr.KindDatabaseCorrupt, fmt.Sprintf("quick_check reported: %v", results))
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "open database", err)
	}

	s := &Store{
		db:        db,
		framesDir: framesRoot,
		videosDir: videosRoot,
		logger:    log.WithComponent("store"),
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.KindDatabaseCorrupt, "migration failed", err)
	}

	if err := s.reconcile(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("startup reconciliation encountered an error")
	}

	return s, nil
}

func fileMissing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const schema = `
	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_ms INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		display INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		byte_size INTEGER NOT NULL,
		is_black INTEGER NOT NULL DEFAULT 0,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_frames_display_ts ON frames(display, timestamp_ms);
	CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time_ms INTEGER NOT NULL,
		end_time_ms INTEGER NOT NULL,
		device_name TEXT NOT NULL,
		device_type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		detailed_summary TEXT NOT NULL DEFAULT '',
		tags_json TEXT NOT NULL DEFAULT '[]',
		timeline_cards_json TEXT NOT NULL DEFAULT '[]',
		video_path TEXT NOT NULL DEFAULT '',
		analysis_state TEXT NOT NULL,
		frame_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time_ms);
	CREATE INDEX IF NOT EXISTS idx_sessions_device_state ON sessions(device_name, device_type, analysis_state);

	CREATE TABLE IF NOT EXISTS llm_calls (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		request_digest TEXT NOT NULL DEFAULT '',
		response_digest TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_llm_calls_session ON llm_calls(session_id);

	CREATE TABLE IF NOT EXISTS config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_json TEXT NOT NULL,
		saved_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leases (
		key TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		expires_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL
	);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM schema_meta"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}

// reconcile drops rows whose backing file is missing from disk — the
// crash-recovery counterpart to the "file deleted before row" ordering used
// by DeleteSession's callers. An orphan *file* (row gone, file present) is
// handled by Retention's orphan scan, not here.
func (s *Store) reconcile(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, file_path FROM frames WHERE is_black = 0")
	if err != nil {
		return err
	}
	defer rows.Close()

	var missing []int64
	for rows.Next() {
		var id int64
		var relPath string
		if err := rows.Scan(&id, &relPath); err != nil {
			return err
		}
		if relPath == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.framesDir, relPath)); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range missing {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM frames WHERE id = ?", id); err != nil {
			return err
		}
		s.logger.Warn().Int64("frame_id", id).Msg("reconciliation dropped a frame row with no backing file")
	}
	return nil
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
