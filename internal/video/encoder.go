package video

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/procgroup"
)

const stderrTailLines = 40

// runEncoder invokes the configured encoder against concatPath, supervised
// with a process-group kill on timeout or context cancellation. Its stderr
// tail is logged for diagnostics on timeout or failure.
func (s *Synthesizer) runEncoder(ctx context.Context, concatPath, outPath string, req Request) error {
	if _, err := exec.LookPath(s.encoderPath); err != nil {
		return apperr.Wrap(apperr.KindEncoderMissing, "encoder binary not found: "+s.encoderPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.encoderPath, encoderArgs(concatPath, outPath, req)...)
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperr.Wrap(apperr.KindEncoderFailed, "attach encoder stderr pipe", err)
	}

	tail := newLineRing(stderrTailLines)
	if err := cmd.Start(); err != nil {
		return apperr.Wrap(apperr.KindEncoderFailed, "start encoder", err)
	}

	done := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			tail.add(sc.Text())
		}
		close(done)
	}()

	waitErr := cmd.Wait()
	<-done

	if ctx.Err() != nil {
		if cmd.Process != nil {
			_ = procgroup.KillGroup(cmd.Process.Pid, 5*time.Second, 10*time.Second)
		}
		s.logger.Warn().Str("session_id", req.SessionID).Strs("stderr_tail", tail.tail()).
			Msg("encoder timed out")
		return apperr.New(apperr.KindEncoderTimeout, "encoder exceeded timeout").WithEntity(req.SessionID)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		_ = errors.As(waitErr, &exitErr)
		s.logger.Error().Str("session_id", req.SessionID).Strs("stderr_tail", tail.tail()).
			Err(waitErr).Msg("encoder exited with error")
		return apperr.Wrap(apperr.KindEncoderFailed, "encoder exited nonzero", waitErr).WithEntity(req.SessionID)
	}

	return nil
}

// encoderArgs builds an ffmpeg-compatible argument list: concat demuxer
// input, optional burnt-in timestamp overlay, and CRF-controlled output
// quality. The timestamp overlay uses the input's own presentation
// timestamp so the burned-in clock reflects playback speed, not wall time.
func encoderArgs(concatPath, outPath string, req Request) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-f", "concat", "-safe", "0", "-i", concatPath,
	}

	var filters []string
	if req.TimestampOverlay {
		filters = append(filters, "drawtext=text='%{pts\\:hms}':x=10:y=10:fontcolor=white:box=1:boxcolor=black@0.5")
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	crf := req.CRF
	if crf <= 0 || crf > 51 {
		crf = 23
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		outPath,
	)
	return args
}
