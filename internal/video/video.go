// Package video drives an external encoder to turn a session's frame list
// into a single fast-playback artifact. Concurrency is bounded two ways: a
// per-session lease in the Store (one synthesis per session at a time) and
// a small worker-pool semaphore shared across sessions (one Synthesizer per
// process, default 2 concurrent encodes).
package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/procgroup"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const leaseOwnerPrefix = "video-synth:"

// Request describes one synthesis job.
type Request struct {
	SessionID  string
	FramesRoot string // absolute path frame FilePath values are relative to
	// SpeedMultiplier is the playback speedup, 1-50x.
	SpeedMultiplier int
	// CRF is encoder quality, 0 (best) - 51 (worst).
	CRF int
	// TimestampOverlay burns the frame's playback timestamp (pts) into each
	// frame.
	TimestampOverlay bool
	// CaptureIntervalSeconds is the nominal spacing between captured frames,
	// used to derive each frame's concat-list duration.
	CaptureIntervalSeconds float64
}

// FrameSource is the subset of Store the Synthesizer reads frames through.
type FrameSource interface {
	ListFramesInSession(ctx context.Context, sessionID string, stride int) ([]store.FrameRecord, error)
	SetVideoPath(ctx context.Context, sessionID, videoPath string) error
	TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (store.Lease, bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error
}

// Synthesizer encodes session frame lists into videos/ with a bounded
// worker pool and a hard per-encode timeout.
type Synthesizer struct {
	store       FrameSource
	videosRoot  string
	encoderPath string
	logger      zerolog.Logger
	sem         *semaphore.Weighted
	timeout     time.Duration
	leaseTTL    time.Duration
}

// Option configures a Synthesizer at construction time.
type Option func(*Synthesizer)

// WithWorkerPool overrides the default cross-session concurrency of 2.
func WithWorkerPool(n int64) Option {
	return func(s *Synthesizer) { s.sem = semaphore.NewWeighted(n) }
}

// WithTimeout overrides the default 10 minute per-encode timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

// New constructs a Synthesizer. encoderPath is the ffmpeg-compatible binary
// to invoke; videosRoot is where finished artifacts land.
func New(st FrameSource, videosRoot, encoderPath string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		store:       st,
		videosRoot:  videosRoot,
		encoderPath: encoderPath,
		logger:      log.WithComponent("video"),
		sem:         semaphore.NewWeighted(2),
		timeout:     10 * time.Minute,
		leaseTTL:    15 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize produces videos/<sessionID>.mp4, updates the session's
// video_path on success, and removes any partial artifact on failure.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "acquire video worker slot", err)
	}
	defer s.sem.Release(1)

	owner := leaseOwnerPrefix + req.SessionID
	lease, ok, err := s.store.TryAcquireLease(ctx, leaseKey(req.SessionID), owner, s.leaseTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.KindInternal, "video synthesis already in progress for session").WithEntity(req.SessionID)
	}
	defer func() { _ = s.store.ReleaseLease(ctx, lease.Key(), owner) }()

	frames, err := s.store.ListFramesInSession(ctx, req.SessionID, 1)
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", apperr.New(apperr.KindEncoderFailed, "session has no frames to synthesize").WithEntity(req.SessionID)
	}

	if req.SpeedMultiplier < 1 || req.SpeedMultiplier > 50 {
		req.SpeedMultiplier = 1
	}
	if req.CaptureIntervalSeconds <= 0 {
		req.CaptureIntervalSeconds = 2
	}

	workDir, err := os.MkdirTemp(s.videosRoot, "synth-"+req.SessionID+"-")
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorageIO, "create synthesis work dir", err)
	}
	defer os.RemoveAll(workDir)

	concatPath, err := writeConcatList(workDir, frames, req)
	if err != nil {
		return "", err
	}

	finalName := req.SessionID + ".mp4"
	finalPath := filepath.Join(s.videosRoot, finalName)
	tmpOut := filepath.Join(workDir, finalName)

	if err := s.runEncoder(ctx, concatPath, tmpOut, req); err != nil {
		return "", err
	}

	if err := os.Rename(tmpOut, finalPath); err != nil {
		return "", apperr.Wrap(apperr.KindStorageIO, "move encoded video into place", err)
	}

	if err := s.store.SetVideoPath(ctx, req.SessionID, finalName); err != nil {
		_ = os.Remove(finalPath)
		return "", err
	}

	return finalName, nil
}

func leaseKey(sessionID string) string {
	return "session:video:" + sessionID
}

// writeConcatList emits an ffmpeg concat-demuxer script: one "file" line per
// frame plus a per-frame "duration" line derived from the nominal capture
// interval and the requested speed multiplier. ffmpeg's concat demuxer
// requires the last file's duration to also be restated via a trailing
// repeat of the final file line, which this includes.
func writeConcatList(workDir string, frames []store.FrameRecord, req Request) (string, error) {
	perFrame := req.CaptureIntervalSeconds / float64(req.SpeedMultiplier)
	if perFrame <= 0 {
		perFrame = 1.0 / float64(req.SpeedMultiplier)
	}

	var buf bytes.Buffer
	buf.WriteString("ffconcat version 1.0\n")
	for i, f := range frames {
		abs := filepath.Join(req.FramesRoot, f.FilePath)
		if _, err := os.Stat(abs); err != nil {
			return "", apperr.Wrap(apperr.KindStorageIO, "frame file unreadable: "+f.FilePath, err).WithEntity(strconv.FormatInt(f.ID, 10))
		}
		fmt.Fprintf(&buf, "file '%s'\n", escapeConcatPath(abs))
		fmt.Fprintf(&buf, "duration %f\n", perFrame)
		if i == len(frames)-1 {
			fmt.Fprintf(&buf, "file '%s'\n", escapeConcatPath(abs))
		}
	}

	listPath := filepath.Join(workDir, "frames.concat")
	if err := os.WriteFile(listPath, buf.Bytes(), 0o644); err != nil {
		return "", apperr.Wrap(apperr.KindStorageIO, "write concat list", err)
	}
	return listPath, nil
}

// escapeConcatPath quotes a path for the ffmpeg concat demuxer's single-quoted
// file directive, the same way a POSIX shell would escape an embedded quote.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
