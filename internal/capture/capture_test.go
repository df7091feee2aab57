package capture

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	records []store.FrameRecord
	delay   time.Duration
}

func (f *fakeWriter) InsertFrame(ctx context.Context, rec store.FrameRecord) (int64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestIsBlackFrame(t *testing.T) {
	black := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			black.Set(x, y, color.RGBA{A: 255})
		}
	}
	require.True(t, isBlackFrame(black, 5))

	bright := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			bright.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	require.False(t, isBlackFrame(bright, 5))
}

func TestResizeToPolicy_OriginalUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4000, 2000))
	out := resizeToPolicy(img, ResolutionOriginal)
	require.Equal(t, 4000, out.Bounds().Dx())
}

func TestResizeToPolicy_DownscalesPreservingAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3840, 2160))
	out := resizeToPolicy(img, Resolution1080p)
	require.Equal(t, 1920, out.Bounds().Dx())
	require.Equal(t, 1080, out.Bounds().Dy())
}

func TestResizeToPolicy_SmallerThanTargetUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	out := resizeToPolicy(img, Resolution4K)
	require.Equal(t, 800, out.Bounds().Dx())
}

func TestWriteJPEG_NamesAndSizes(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	ts := time.UnixMilli(1_700_000_000_000).UTC()

	rel, size, err := writeJPEG(dir, ts, 0, img, 80)
	require.NoError(t, err)
	require.Greater(t, size, int64(0))
	require.Equal(t, filepath.Join("2023-11-14", "1700000000000_0.jpg"), rel)
}

func TestEngine_BackPressure_SkipsOverlappingTick(t *testing.T) {
	w := &fakeWriter{delay: 50 * time.Millisecond}
	e := New(w, t.TempDir())

	// A tick already marked running (simulating one still in flight) must
	// be skipped and counted, never queued.
	e.running.Store(true)
	e.Tick(context.Background(), Policy{})
	require.EqualValues(t, 1, e.MissedFrames())
	e.running.Store(false)
}

func TestEngine_PauseSkipsTicks(t *testing.T) {
	w := &fakeWriter{}
	e := New(w, t.TempDir())
	e.state.Store(StateCapturing)
	e.Pause()
	require.Equal(t, StatePaused, e.State())

	e.Tick(context.Background(), Policy{})
	require.Equal(t, 0, w.count())

	e.Resume()
	require.Equal(t, StateCapturing, e.State())
}
