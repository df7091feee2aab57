package segment

import (
	"context"
	"testing"
	"time"

	"github.com/deskrecall/deskrecalld/internal/analysis"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	sessions     map[string]*store.Session
	boundRanges  map[string][2]int64
	tooShortIDs  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*store.Session{}, boundRanges: map[string][2]int64{}, tooShortIDs: map[string]bool{}}
}

func (f *fakeStore) OpenSession(ctx context.Context, deviceName string, deviceType store.DeviceType, start time.Time) (store.Session, error) {
	for _, sess := range f.sessions {
		if sess.DeviceName == deviceName && sess.DeviceType == deviceType && sess.AnalysisState == analysis.StateOpen {
			return *sess, nil
		}
	}
	sess := store.Session{ID: uuid.NewString(), DeviceName: deviceName, DeviceType: deviceType, StartTime: start, AnalysisState: analysis.StateOpen}
	f.sessions[sess.ID] = &sess
	return sess, nil
}

func (f *fakeStore) CloseSession(ctx context.Context, sessionID string, endTime time.Time) error {
	sess := f.sessions[sessionID]
	sess.EndTime = endTime
	sess.AnalysisState = analysis.StateClosed
	return nil
}

func (f *fakeStore) MarkTooShort(ctx context.Context, sessionID string) error {
	f.sessions[sessionID].AnalysisState = analysis.StateTooShort
	f.tooShortIDs[sessionID] = true
	return nil
}

func (f *fakeStore) BindFramesToSession(ctx context.Context, sessionID string, fromID, toID int64) error {
	f.boundRanges[sessionID] = [2]int64{fromID, toID}
	return nil
}

func (f *fakeStore) ListFramesInSession(ctx context.Context, sessionID string, stride int) ([]store.FrameRecord, error) {
	return nil, nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	return *f.sessions[sessionID], nil
}

func TestSegmenter_IdleGapClosesSession(t *testing.T) {
	fs := newFakeStore()
	seg := New(fs)
	p := Policy{IdleGap: 5 * time.Minute, MaxSessionWindow: time.Hour, MinSessionLength: time.Minute}
	base := time.Now().UTC()

	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base}, 1, "host-a", store.DeviceLinux))
	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base.Add(2 * time.Minute)}, 2, "host-a", store.DeviceLinux))
	sessionID := seg.openSessionID

	require.NoError(t, seg.Tick(context.Background(), p, base.Add(10*time.Minute)))
	require.Empty(t, seg.openSessionID, "session should be closed after the idle gap elapses")
	require.Equal(t, analysis.StateClosed, fs.sessions[sessionID].AnalysisState)
}

func TestSegmenter_TooShortBelowMinimum(t *testing.T) {
	fs := newFakeStore()
	seg := New(fs)
	p := Policy{IdleGap: time.Minute, MaxSessionWindow: time.Hour, MinSessionLength: 15 * time.Minute}
	base := time.Now().UTC()

	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base}, 1, "host-a", store.DeviceLinux))
	sessionID := seg.openSessionID

	require.NoError(t, seg.Tick(context.Background(), p, base.Add(2*time.Minute)))
	require.True(t, fs.tooShortIDs[sessionID])
}

func TestSegmenter_MaxWindowForcesClose(t *testing.T) {
	fs := newFakeStore()
	seg := New(fs)
	p := Policy{IdleGap: time.Hour, MaxSessionWindow: 15 * time.Minute, MinSessionLength: time.Minute}
	base := time.Now().UTC()

	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base}, 1, "host-a", store.DeviceLinux))
	// Keep frames flowing (no idle gap) but past the max window.
	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base.Add(10 * time.Minute)}, 2, "host-a", store.DeviceLinux))

	require.NoError(t, seg.Tick(context.Background(), p, base.Add(20*time.Minute)))
	require.Empty(t, seg.openSessionID, "session must close once it reaches the configured maximum window")
}

func TestSegmenter_DeviceChangeForcesClose(t *testing.T) {
	fs := newFakeStore()
	seg := New(fs)
	base := time.Now().UTC()

	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base}, 1, "host-a", store.DeviceLinux))
	first := seg.openSessionID

	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base.Add(time.Minute)}, 2, "host-b", store.DeviceWindows))
	require.NotEqual(t, first, seg.openSessionID)
	require.Equal(t, analysis.StateClosed, fs.sessions[first].AnalysisState)
}

func TestSegmenter_FlushClosesOpenSession(t *testing.T) {
	fs := newFakeStore()
	seg := New(fs)
	base := time.Now().UTC()

	require.NoError(t, seg.ObserveFrame(context.Background(), store.FrameRecord{Timestamp: base}, 1, "host-a", store.DeviceLinux))
	sessionID := seg.openSessionID

	require.NoError(t, seg.Flush(context.Background(), Policy{MinSessionLength: time.Hour}, base.Add(time.Minute)))
	require.Empty(t, seg.openSessionID)
	require.True(t, fs.tooShortIDs[sessionID])
}
