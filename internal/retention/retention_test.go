package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "data.db"), filepath.Join(dir, "frames"), filepath.Join(dir, "videos"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunOnce_DeletesAgedSessionFilesBeforeRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	sess, err := s.OpenSession(ctx, "host", store.DeviceLinux, old)
	require.NoError(t, err)

	framePath := filepath.Join(s.FramesRoot(), "frame.jpg")
	require.NoError(t, os.MkdirAll(s.FramesRoot(), 0o755))
	require.NoError(t, os.WriteFile(framePath, []byte("x"), 0o644))

	id, err := s.InsertFrame(ctx, store.FrameRecord{Timestamp: old, Display: 0, FilePath: "frame.jpg"})
	require.NoError(t, err)
	require.NoError(t, s.BindFramesToSession(ctx, sess.ID, id, id))
	require.NoError(t, s.CloseSession(ctx, sess.ID, old.Add(20*time.Minute)))

	w := New(s, time.Minute)
	require.NoError(t, w.RunOnce(ctx, 1))

	_, err = s.GetSession(ctx, sess.ID)
	require.Error(t, err)
	_, statErr := os.Stat(framePath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunOnce_KeepsRecentSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	sess, err := s.OpenSession(ctx, "host", store.DeviceLinux, now)
	require.NoError(t, err)
	require.NoError(t, s.CloseSession(ctx, sess.ID, now.Add(20*time.Minute)))

	w := New(s, time.Minute)
	require.NoError(t, w.RunOnce(ctx, 7))

	_, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
}

func TestRunOnce_SweepsOrphanFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(s.FramesRoot(), 0o755))
	orphan := filepath.Join(s.FramesRoot(), "orphan.jpg")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	oldTime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(orphan, oldTime, oldTime))

	w := New(s, time.Minute)
	require.NoError(t, w.RunOnce(ctx, 7))

	_, statErr := os.Stat(orphan)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunOnce_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	w := New(s, time.Minute)
	ctx := context.Background()

	require.NoError(t, w.RunOnce(ctx, 7))
	require.NoError(t, w.RunOnce(ctx, 7))
}
