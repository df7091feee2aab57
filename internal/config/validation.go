package config

import (
	"fmt"

	"github.com/deskrecall/deskrecalld/internal/apperr"
)

var validResolutions = map[string]bool{"1080p": true, "2k": true, "4k": true, "original": true}
var validDatabaseBackends = map[string]bool{"sqlite": true, "remote-sql": true}
var validSinks = map[string]bool{"stdout": true, "file": true}

// Validate rejects any Config that violates SPEC_FULL.md §6's ranges,
// returning a single apperr.KindConfigInvalid wrapping the first violation
// found. The Config Manager never partially applies: a single violation
// fails the whole update (§4.H).
func Validate(c Config) error {
	switch {
	case c.RetentionDays < 1 || c.RetentionDays > 30:
		return invalid("retention_days must be in [1,30], got %d", c.RetentionDays)
	case c.CaptureIntervalSeconds < 1 || c.CaptureIntervalSeconds > 60:
		return invalid("capture_interval must be in [1,60] seconds, got %d", c.CaptureIntervalSeconds)
	case c.SummaryIntervalMinutes < 5 || c.SummaryIntervalMinutes > 60:
		return invalid("summary_interval must be in [5,60] minutes, got %d", c.SummaryIntervalMinutes)
	case !validResolutions[c.CaptureSettings.Resolution]:
		return invalid("capture_settings.resolution must be one of 1080p|2k|4k|original, got %q", c.CaptureSettings.Resolution)
	case c.CaptureSettings.ImageQuality < 50 || c.CaptureSettings.ImageQuality > 100:
		return invalid("capture_settings.image_quality must be in [50,100], got %d", c.CaptureSettings.ImageQuality)
	case c.CaptureSettings.BlackScreenThreshold < 0 || c.CaptureSettings.BlackScreenThreshold > 255:
		return invalid("capture_settings.black_screen_threshold must be in [0,255], got %d", c.CaptureSettings.BlackScreenThreshold)
	case c.VideoConfig.SpeedMultiplier < 1 || c.VideoConfig.SpeedMultiplier > 50:
		return invalid("video_config.speed_multiplier must be in [1,50], got %d", c.VideoConfig.SpeedMultiplier)
	case c.VideoConfig.Quality < 0 || c.VideoConfig.Quality > 51:
		return invalid("video_config.quality must be in [0,51], got %d", c.VideoConfig.Quality)
	case !validDatabaseBackends[c.DatabaseConfig.Backend]:
		return invalid("database_config.backend must be sqlite|remote-sql, got %q", c.DatabaseConfig.Backend)
	case c.LoggerSettings.Sink != "" && !validSinks[c.LoggerSettings.Sink]:
		return invalid("logger_settings.sink must be stdout|file, got %q", c.LoggerSettings.Sink)
	case c.SegmentPolicy.IdleGapMinutes < 1:
		return invalid("segment_policy.idle_gap_minutes must be >= 1, got %d", c.SegmentPolicy.IdleGapMinutes)
	case c.SegmentPolicy.MaxSessionWindowMinutes < 1:
		return invalid("segment_policy.max_session_window_minutes must be >= 1, got %d", c.SegmentPolicy.MaxSessionWindowMinutes)
	case c.SegmentPolicy.MinSessionLengthMinutes < 0:
		return invalid("segment_policy.min_session_length_minutes must be >= 0, got %d", c.SegmentPolicy.MinSessionLengthMinutes)
	case c.RetentionIntervalMinutes < 1:
		return invalid("retention_interval_minutes must be >= 1, got %d", c.RetentionIntervalMinutes)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperr.New(apperr.KindConfigInvalid, fmt.Sprintf(format, args...))
}
