// Package segment implements the Session Segmenter: the slower-cadence task
// that closes sessions on an idle gap, a maximum window, or an explicit
// flush, and marks short closed sessions too_short.
package segment

import (
	"context"
	"time"

	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/rs/zerolog"
)

// Policy holds the Segmenter's independent close knobs — resolving Open
// Question 2, max session window and the gap that forces a new session are
// separate settings evaluated every tick, not one conflated value.
type Policy struct {
	IdleGap         time.Duration
	MaxSessionWindow time.Duration
	MinSessionLength time.Duration
}

// DefaultPolicy matches the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		IdleGap:          5 * time.Minute,
		MaxSessionWindow: 15 * time.Minute,
		MinSessionLength: 15 * time.Minute,
	}
}

// Store is the subset of internal/store the Segmenter depends on.
type Store interface {
	OpenSession(ctx context.Context, deviceName string, deviceType store.DeviceType, start time.Time) (store.Session, error)
	CloseSession(ctx context.Context, sessionID string, endTime time.Time) error
	MarkTooShort(ctx context.Context, sessionID string) error
	BindFramesToSession(ctx context.Context, sessionID string, fromID, toID int64) error
	ListFramesInSession(ctx context.Context, sessionID string, stride int) ([]store.FrameRecord, error)
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
}

// Segmenter tracks the currently open session per device identity and
// applies the close rules on each Tick.
type Segmenter struct {
	store  Store
	logger zerolog.Logger

	openSessionID  string
	deviceName     string
	deviceType     store.DeviceType
	sessionStart   time.Time
	lastNonBlackAt time.Time
	pendingFromID  int64
}

func New(st Store) *Segmenter {
	return &Segmenter{store: st, logger: log.WithComponent("segment")}
}

// ObserveFrame is called by the Capture Engine (directly or via the
// Scheduler) right after a frame is inserted, so the Segmenter can bind it
// to the currently open session and track the device identity and the most
// recent non-black timestamp used by the idle-gap rule.
func (s *Segmenter) ObserveFrame(ctx context.Context, f store.FrameRecord, frameID int64, deviceName string, deviceType store.DeviceType) error {
	deviceChanged := s.openSessionID != "" && (deviceName != s.deviceName || deviceType != s.deviceType)
	if deviceChanged {
		if err := s.closeCurrent(ctx, Policy{}, f.Timestamp); err != nil {
			return err
		}
	}

	if s.openSessionID == "" {
		sess, err := s.store.OpenSession(ctx, deviceName, deviceType, f.Timestamp)
		if err != nil {
			return err
		}
		s.openSessionID = sess.ID
		s.deviceName = deviceName
		s.deviceType = deviceType
		s.sessionStart = sess.StartTime
		s.pendingFromID = frameID
	}

	if !f.IsBlack {
		s.lastNonBlackAt = f.Timestamp
	}

	return s.store.BindFramesToSession(ctx, s.openSessionID, s.pendingFromID, frameID)
}

// Tick evaluates the idle-gap and max-window close rules against now. It is
// invoked by the Scheduler on the Segmenter's own cadence (default every 15
// minutes), independent of the Capture Engine's tick rate.
func (s *Segmenter) Tick(ctx context.Context, p Policy, now time.Time) error {
	if s.openSessionID == "" {
		return nil
	}

	idleExceeded := !s.lastNonBlackAt.IsZero() && now.Sub(s.lastNonBlackAt) > p.IdleGap
	windowExceeded := now.Sub(s.sessionStart) >= p.MaxSessionWindow

	if idleExceeded || windowExceeded {
		closeAt := s.lastNonBlackAt
		if windowExceeded && (!idleExceeded || s.sessionStart.Add(p.MaxSessionWindow).Before(closeAt)) {
			closeAt = s.sessionStart.Add(p.MaxSessionWindow)
		}
		return s.closeCurrent(ctx, p, closeAt)
	}
	return nil
}

// Flush force-closes the current session regardless of the idle/window
// rules, used at shutdown so no session is left dangling in the open state.
func (s *Segmenter) Flush(ctx context.Context, p Policy, now time.Time) error {
	if s.openSessionID == "" {
		return nil
	}
	return s.closeCurrent(ctx, p, now)
}

func (s *Segmenter) closeCurrent(ctx context.Context, p Policy, endTime time.Time) error {
	sessionID := s.openSessionID
	start := s.sessionStart

	if err := s.store.CloseSession(ctx, sessionID, endTime); err != nil {
		return err
	}

	if p.MinSessionLength > 0 && endTime.Sub(start) < p.MinSessionLength {
		if err := s.store.MarkTooShort(ctx, sessionID); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("event", "session.closed").
		Str("session_id", sessionID).
		Dur("duration", endTime.Sub(start)).
		Msg("session closed")

	s.openSessionID = ""
	s.deviceName = ""
	s.deviceType = ""
	s.sessionStart = time.Time{}
	s.lastNonBlackAt = time.Time{}
	s.pendingFromID = 0
	return nil
}
