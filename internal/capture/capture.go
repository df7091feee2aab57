// Package capture implements the periodic screenshot capture engine: one
// tick per display per Scheduler interval, downscaled and JPEG-compressed
// per the active resolution policy, with luminance-based black-frame
// detection and skip-don't-block back-pressure.
package capture

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/rs/zerolog"
	"github.com/vova616/screenshot"
)

// State is the engine's own idle/capturing/paused posture, independent of
// the per-session analysis state machine in internal/analysis.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StatePaused    State = "paused"
)

// Policy configures one capture tick.
type Policy struct {
	Resolution       Resolution
	Quality          int // 50-100
	BlackThreshold   float64
	SkipBlackWrites  bool // write the row but not the file when is_black
	ExcludeDisplays  map[int]bool
}

// Writer is the subset of the store the engine needs; satisfied by *store.Store.
type Writer interface {
	InsertFrame(ctx context.Context, f store.FrameRecord) (int64, error)
}

// Engine owns the capture loop. Zero value is not usable; use New.
type Engine struct {
	writer     Writer
	framesRoot string
	logger     zerolog.Logger

	state   atomic.Value // State
	running atomic.Bool  // true between tick start and tick end, the back-pressure gate

	missedFrames atomic.Uint64
	lastError    atomic.Value // string
}

func New(writer Writer, framesRoot string) *Engine {
	e := &Engine{writer: writer, framesRoot: framesRoot, logger: log.WithComponent("capture")}
	e.state.Store(StateIdle)
	e.lastError.Store("")
	return e
}

func (e *Engine) State() State { return e.state.Load().(State) }

func (e *Engine) Pause() {
	if e.State() == StateCapturing {
		e.state.Store(StatePaused)
	}
}

func (e *Engine) Resume() {
	if e.State() == StatePaused {
		e.state.Store(StateCapturing)
	}
}

// MissedFrames reports ticks skipped because the previous tick was still
// running, satisfying the Capture Engine's back-pressure metric.
func (e *Engine) MissedFrames() uint64 { return e.missedFrames.Load() }

func (e *Engine) LastError() string { s, _ := e.lastError.Load().(string); return s }

// Tick runs one capture pass across every enumerated display. It is called
// by the Scheduler at the configured cadence; a tick overlapping the
// previous one is skipped rather than queued, per the no-queueing
// invariant.
func (e *Engine) Tick(ctx context.Context, p Policy) {
	if e.State() == StatePaused {
		return
	}
	if !e.running.CompareAndSwap(false, true) {
		e.missedFrames.Add(1)
		return
	}
	defer e.running.Store(false)

	e.state.Store(StateCapturing)

	displays, err := enumerateDisplays()
	if err != nil {
		e.lastError.Store(err.Error())
		e.logger.Warn().Err(err).Msg("display enumeration failed")
		return
	}

	now := time.Now().UTC()
	for _, d := range displays {
		if p.ExcludeDisplays[d.Index] {
			continue
		}
		if err := e.captureOne(ctx, d, now, p); err != nil {
			e.lastError.Store(err.Error())
			e.logger.Warn().Err(err).Int("display", d.Index).Msg("capture failed for display")
		}
	}
}

func (e *Engine) captureOne(ctx context.Context, d display, ts time.Time, p Policy) error {
	img, err := screenshot.CaptureRect(d.Bounds)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "capture display", err)
	}

	scaled := resizeToPolicy(img, p.Resolution)
	black := isBlackFrame(scaled, p.BlackThreshold)

	rec := store.FrameRecord{
		Timestamp: ts,
		Display:   d.Index,
		Width:     scaled.Bounds().Dx(),
		Height:    scaled.Bounds().Dy(),
		IsBlack:   black,
	}

	if !black || !p.SkipBlackWrites {
		path, size, err := writeJPEG(e.framesRoot, ts, d.Index, scaled, p.Quality)
		if err != nil {
			return apperr.Wrap(apperr.KindStorageIO, "write frame jpeg", err)
		}
		rec.FilePath = path
		rec.ByteSize = size
	}

	if _, err := e.writer.InsertFrame(ctx, rec); err != nil {
		return err
	}
	return nil
}

type display struct {
	Index  int
	Bounds image.Rectangle
}

// enumerateDisplays reports one entry: the library underlying capture here
// exposes a single combined virtual screen rectangle rather than per-monitor
// enumeration, so a multi-monitor host is captured as one wide frame under
// display index 0. ExcludeDisplays beyond index 0 is accepted but has no
// effect until per-monitor capture is available.
func enumerateDisplays() ([]display, error) {
	bounds := screenshot.ScreenRect()
	if bounds.Empty() {
		return nil, fmt.Errorf("no active display")
	}
	return []display{{Index: 0, Bounds: bounds}}, nil
}
