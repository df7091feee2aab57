package scheduler

import (
	"context"
	"os"
	"runtime"

	"github.com/deskrecall/deskrecalld/internal/segment"
	"github.com/deskrecall/deskrecalld/internal/store"
)

// FrameInserter is the subset of internal/store.Store the capture Writer
// adapter delegates to.
type FrameInserter interface {
	InsertFrame(ctx context.Context, f store.FrameRecord) (int64, error)
}

// CaptureWriter adapts the Store to capture.Engine's Writer interface,
// routing every inserted frame to the Segmenter so session binding happens
// in the same codepath that writes the frame, not as a second pass over
// the table. Session boundaries key off this process's local device
// identity (§4.C: a device is OS family + hostname), fixed for the
// process's lifetime.
type CaptureWriter struct {
	store      FrameInserter
	segmenter  *segment.Segmenter
	deviceName string
	deviceType store.DeviceType
}

// NewCaptureWriter constructs a CaptureWriter for this host's device
// identity.
func NewCaptureWriter(st FrameInserter, seg *segment.Segmenter) *CaptureWriter {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "unknown-host"
	}
	return &CaptureWriter{store: st, segmenter: seg, deviceName: name, deviceType: localDeviceType()}
}

// InsertFrame writes the frame through the Store, then binds it to the
// Segmenter's currently open session for this device.
func (w *CaptureWriter) InsertFrame(ctx context.Context, f store.FrameRecord) (int64, error) {
	id, err := w.store.InsertFrame(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := w.segmenter.ObserveFrame(ctx, f, id, w.deviceName, w.deviceType); err != nil {
		return id, err
	}
	return id, nil
}

func localDeviceType() store.DeviceType {
	switch runtime.GOOS {
	case "windows":
		return store.DeviceWindows
	case "darwin":
		return store.DeviceMacOS
	case "linux":
		return store.DeviceLinux
	default:
		return store.DeviceUnknown
	}
}
