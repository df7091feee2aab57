// Package retention implements the Retention Worker: the hourly (default)
// task that prunes sessions older than the configured cutoff, file first
// and row second, then scans for orphan files the cutoff pass missed.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/metrics"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/rs/zerolog"
)

// orphanGraceWindow keeps a just-written file from being swept before its
// owning row commits: a file newer than this is left alone even if it is
// not yet known to the Store.
const orphanGraceWindow = 10 * time.Minute

// Store is the subset of internal/store.Store the worker depends on.
type Store interface {
	SessionsOlderThan(ctx context.Context, cutoff time.Time) ([]store.PrunableSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	KnownFramePaths(ctx context.Context) (map[string]struct{}, error)
	KnownVideoPaths(ctx context.Context) (map[string]struct{}, error)
	FramesRoot() string
	VideosRoot() string
	StorageStats(ctx context.Context) (store.StorageStats, error)
}

// Worker runs retention passes on its own cadence, skipping an overlapping
// tick rather than queueing it (mirrors the teacher's verification.Worker
// busy guard).
type Worker struct {
	store   Store
	logger  zerolog.Logger
	busy    atomic.Bool
	timeout time.Duration

	lastStats atomic.Value // store.StorageStats
}

// New constructs a Worker. timeout bounds a single pass; zero uses 5 minutes.
func New(st Store, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Worker{store: st, logger: log.WithComponent("retention"), timeout: timeout}
}

// Tick runs one retention pass if none is already running. It is invoked by
// the Scheduler at the configured cadence (default hourly).
func (w *Worker) Tick(ctx context.Context, retentionDays int) {
	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)

	start := time.Now()
	if err := w.RunOnce(ctx, retentionDays); err != nil {
		w.logger.Error().Err(err).Msg("retention run failed")
	}
	metrics.RetentionRunDurationSeconds.Observe(time.Since(start).Seconds())
}

// RunOnce executes the five-step retention sequence described by the spec:
// compute cutoff, delete aged sessions (file before row), scan for
// orphans, recompute storage stats. It is safe to interrupt (ctx
// cancellation) and resume: each session and each orphan file is deleted
// independently, so a partial run leaves the store consistent and a
// subsequent run finishes what remains.
func (w *Worker) RunOnce(ctx context.Context, retentionDays int) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	sessions, err := w.store.SessionsOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.deleteSession(ctx, sess); err != nil {
			w.logger.Warn().Err(err).Str("session_id", sess.SessionID).Msg("failed to prune session")
			continue
		}
		metrics.RetentionDeletedSessionsTotal.WithLabelValues("age_cutoff").Inc()
	}

	if err := w.scanOrphans(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("orphan scan failed")
	}

	stats, err := w.store.StorageStats(ctx)
	if err != nil {
		return err
	}
	w.lastStats.Store(stats)
	metrics.StorageBytes.WithLabelValues("db").Set(float64(stats.DBBytes))
	metrics.StorageBytes.WithLabelValues("frames").Set(float64(stats.FramesBytes))
	metrics.StorageBytes.WithLabelValues("videos").Set(float64(stats.VideosBytes))
	return nil
}

// LastStats returns the StorageStats snapshot from the most recently
// completed retention pass, or the zero value if none has run yet.
func (w *Worker) LastStats() store.StorageStats {
	s, _ := w.lastStats.Load().(store.StorageStats)
	return s
}

func (w *Worker) deleteSession(ctx context.Context, sess store.PrunableSession) error {
	if sess.VideoPath != "" {
		if err := os.Remove(filepath.Join(w.store.VideosRoot(), sess.VideoPath)); err != nil && !os.IsNotExist(err) {
			return apperr.Wrap(apperr.KindStorageIO, "remove session video", err)
		}
	}
	for _, p := range sess.FramePaths {
		if err := os.Remove(filepath.Join(w.store.FramesRoot(), p)); err != nil && !os.IsNotExist(err) {
			return apperr.Wrap(apperr.KindStorageIO, "remove session frame", err)
		}
	}
	return w.store.DeleteSession(ctx, sess.SessionID)
}

// scanOrphans deletes files under frames/ or videos/ that the Store has no
// record of, skipping anything modified within the grace window so a file
// written just before its row commits is never swept out from under it.
func (w *Worker) scanOrphans(ctx context.Context) error {
	knownFrames, err := w.store.KnownFramePaths(ctx)
	if err != nil {
		return err
	}
	if err := w.sweepRoot(w.store.FramesRoot(), knownFrames, "frames"); err != nil {
		return err
	}

	knownVideos, err := w.store.KnownVideoPaths(ctx)
	if err != nil {
		return err
	}
	return w.sweepRoot(w.store.VideosRoot(), knownVideos, "videos")
}

func (w *Worker) sweepRoot(root string, known map[string]struct{}, label string) error {
	cutoff := time.Now().Add(-orphanGraceWindow)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if _, ok := known[rel]; ok {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to remove orphan file")
			return nil
		}
		metrics.RetentionOrphanFilesDeletedTotal.WithLabelValues(label).Inc()
		return nil
	})
}
