package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
)

// PrunableSession is a session eligible for retention along with the file
// paths that must be deleted before the corresponding rows are committed
// away, preserving the file-before-row ordering required by the no-orphan
// invariant (a crash between the two leaves an orphan row, never an orphan
// file).
type PrunableSession struct {
	SessionID  string
	FramePaths []string // relative to the frames root
	VideoPath  string    // relative to the videos root, empty if none
}

// SessionsOlderThan returns every session whose end_time is strictly before
// cutoff, with the file paths the caller must delete first.
func (s *Store) SessionsOlderThan(ctx context.Context, cutoff time.Time) ([]PrunableSession, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, video_path FROM sessions WHERE end_time_ms < ?", timeToMS(cutoff))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query prunable sessions", err)
	}
	defer rows.Close()

	var out []PrunableSession
	for rows.Next() {
		var p PrunableSession
		if err := rows.Scan(&p.SessionID, &p.VideoPath); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan prunable session", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "iterate prunable sessions", err)
	}

	for i := range out {
		paths, err := s.framePathsForSession(ctx, out[i].SessionID)
		if err != nil {
			return nil, err
		}
		out[i].FramePaths = paths
	}
	return out, nil
}

// FramePathsForSession exposes a single session's frame file paths,
// backing the command surface's delete_session (files must go before the
// row, per the no-orphan-file invariant).
func (s *Store) FramePathsForSession(ctx context.Context, sessionID string) ([]string, error) {
	return s.framePathsForSession(ctx, sessionID)
}

func (s *Store) framePathsForSession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_path FROM frames WHERE session_id = ? AND file_path != ''", sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query session frame paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan frame path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// KnownFramePaths and KnownVideoPaths back Retention's orphan scan: any file
// under the frames/videos root not present in these sets, and not newer
// than a small grace window, is deleted.
func (s *Store) KnownFramePaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_path FROM frames WHERE file_path != ''")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query known frame paths", err)
	}
	defer rows.Close()
	set := map[string]struct{}{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan known frame path", err)
		}
		set[p] = struct{}{}
	}
	return set, rows.Err()
}

func (s *Store) KnownVideoPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT video_path FROM sessions WHERE video_path != ''")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query known video paths", err)
	}
	defer rows.Close()
	set := map[string]struct{}{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan known video path", err)
		}
		set[p] = struct{}{}
	}
	return set, rows.Err()
}

// FramesRoot and VideosRoot expose the configured roots so Retention can
// walk the filesystem without re-deriving them from Config.
func (s *Store) FramesRoot() string { return s.framesDir }
func (s *Store) VideosRoot() string { return s.videosDir }

// StorageStats computes current on-disk and in-database usage.
func (s *Store) StorageStats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frames").Scan(&stats.FrameCount); err != nil {
		return StorageStats{}, apperr.Wrap(apperr.KindStorageIO, "count frames", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.SessionCount); err != nil {
		return StorageStats{}, apperr.Wrap(apperr.KindStorageIO, "count sessions", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(byte_size), 0) FROM frames").Scan(&stats.FramesBytes); err != nil {
		return StorageStats{}, apperr.Wrap(apperr.KindStorageIO, "sum frame bytes", err)
	}

	stats.VideosBytes = dirSize(s.videosDir)

	if dbPath := s.dbFilePath(ctx); dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			stats.DBBytes = info.Size()
		}
	}

	return stats, nil
}

func (s *Store) dbFilePath(ctx context.Context) string {
	var file string
	// PRAGMA database_list returns (seq, name, file); "main" is the primary db.
	rows, err := s.db.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return ""
	}
	defer rows.Close()
	for rows.Next() {
		var seq int
		var name, path string
		if err := rows.Scan(&seq, &name, &path); err == nil && name == "main" {
			file = path
		}
	}
	return file
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
