package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskrecall/deskrecalld/internal/config"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/segment"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestCapturePolicy_MapsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureSettings.Resolution = "4k"
	cfg.CaptureSettings.ImageQuality = 90
	cfg.CaptureSettings.ExcludedDisplays = []int{2}

	pol := capturePolicy(cfg)
	require.Equal(t, "4k", string(pol.Resolution))
	require.Equal(t, 90, pol.Quality)
	require.True(t, pol.ExcludeDisplays[2])
}

func TestCapturePolicy_BlackDetectionDisabledZeroesThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureSettings.DetectBlackScreen = false
	cfg.CaptureSettings.BlackScreenThreshold = 50

	pol := capturePolicy(cfg)
	require.Equal(t, 0.0, pol.BlackThreshold)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "data.db"), filepath.Join(dir, "frames"), filepath.Join(dir, "videos"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCaptureWriter_OpensSessionAndBindsFrame(t *testing.T) {
	st := newTestStore(t)
	seg := segment.New(st)
	cw := NewCaptureWriter(st, seg)

	now := time.Now().UTC()
	id, err := cw.InsertFrame(context.Background(), store.FrameRecord{Timestamp: now, Display: 0})
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, seg.Flush(context.Background(), segment.DefaultPolicy(), now.Add(time.Minute)))
}

func TestJobWorker_RespectsPerKindConcurrency(t *testing.T) {
	s := &Scheduler{
		logger: log.WithComponent("scheduler-test"),
		jobs:   make(chan job, 8),
		limits: map[JobKind]*semaphore.Weighted{JobVideo: semaphore.NewWeighted(1)},
		done:   make(chan struct{}),
	}

	var concurrent atomic.Int32
	var maxObserved atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(context.Background(), JobVideo, func(ctx context.Context) error {
			n := concurrent.Add(1)
			for {
				old := maxObserved.Load()
				if n <= old || maxObserved.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			concurrent.Add(-1)
			return nil
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.runJobWorker(ctx)
	go s.runJobWorker(ctx)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), maxObserved.Load())
	close(release)
}
