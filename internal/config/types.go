// Package config is the Config Manager (SPEC_FULL.md §4.H): it holds the
// single authoritative configuration value, persists it atomically, and
// fans out changes to live subscribers (Capture cadence, Scheduler
// intervals, Orchestrator provider selection, Retention days). Unlike the
// teacher's YAML-plus-environment-alias configuration, this product's
// config.json is the sole on-disk format (§6) — there is no environment
// variable layer, and LLM credentials are likewise read only from config.
package config

import "time"

// Config is the full set of recognized options from SPEC_FULL.md §6.
type Config struct {
	RetentionDays          int `json:"retention_days"`
	CaptureIntervalSeconds int `json:"capture_interval"`
	SummaryIntervalMinutes int `json:"summary_interval"`

	CaptureSettings CaptureSettings `json:"capture_settings"`
	VideoConfig     VideoConfig     `json:"video_config"`

	LLMProvider string         `json:"llm_provider"`
	LLMConfig   map[string]any `json:"llm_config"`

	LoggerSettings LoggerSettings `json:"logger_settings"`
	DatabaseConfig DatabaseConfig `json:"database_config"`

	// SegmentPolicy and RetentionIntervalMinutes extend beyond the table of
	// §6 to carry the two independent Segmenter knobs and the Retention
	// Worker's own cadence (§4.C, §4.G); both are recognized options even
	// though the summary table does not enumerate them by name.
	SegmentPolicy            SegmentPolicy `json:"segment_policy"`
	RetentionIntervalMinutes int           `json:"retention_interval_minutes"`
}

// CaptureSettings controls the Capture Engine (§4.B).
type CaptureSettings struct {
	Resolution           string `json:"resolution"` // 1080p|2k|4k|original
	ImageQuality          int    `json:"image_quality"`
	DetectBlackScreen     bool   `json:"detect_black_screen"`
	BlackScreenThreshold  int    `json:"black_screen_threshold"`
	// ExcludedDisplays lists zero-based display indices the Capture Engine
	// should skip each tick.
	ExcludedDisplays []int `json:"excluded_displays,omitempty"`
}

// VideoConfig controls the Video Synthesizer (§4.D).
type VideoConfig struct {
	AutoGenerate    bool `json:"auto_generate"`
	SpeedMultiplier int  `json:"speed_multiplier"` // 1-50x
	Quality         int  `json:"quality"`          // CRF 0-51
	AddTimestamp    bool `json:"add_timestamp"`
}

// LoggerSettings is the ambient logging configuration, carried through
// regardless of §1's UI/logging-setup non-goal: this product still needs a
// level, buffer size, and sink for its own structured logger.
type LoggerSettings struct {
	Level      string `json:"level"`
	BufferSize int    `json:"buffer_size"`
	Sink       string `json:"sink"` // "stdout" | "file"
}

// DatabaseConfig selects the Store's backend.
type DatabaseConfig struct {
	Backend string `json:"backend"` // "sqlite" | "remote-sql"
	Path    string `json:"path"`    // sqlite file path, or a remote-sql DSN
}

// SegmentPolicy carries the Segmenter's three independently configurable
// knobs (SPEC_FULL.md §9, Open Question 2: both knobs are kept, not
// collapsed into one).
type SegmentPolicy struct {
	IdleGapMinutes        int `json:"idle_gap_minutes"`
	MaxSessionWindowMinutes int `json:"max_session_window_minutes"`
	MinSessionLengthMinutes int `json:"min_session_length_minutes"`
}

// IdleGap, MaxSessionWindow, and MinSessionLength convert SegmentPolicy's
// minute fields into time.Duration for internal/segment.Policy.
func (p SegmentPolicy) IdleGap() time.Duration {
	return time.Duration(p.IdleGapMinutes) * time.Minute
}

func (p SegmentPolicy) MaxSessionWindow() time.Duration {
	return time.Duration(p.MaxSessionWindowMinutes) * time.Minute
}

func (p SegmentPolicy) MinSessionLength() time.Duration {
	return time.Duration(p.MinSessionLengthMinutes) * time.Minute
}

// Clone deep-copies a Config so a subscriber can retain it across its own
// lifetime without aliasing the Manager's internal state.
func (c Config) Clone() Config {
	out := c
	if c.CaptureSettings.ExcludedDisplays != nil {
		out.CaptureSettings.ExcludedDisplays = append([]int(nil), c.CaptureSettings.ExcludedDisplays...)
	}
	if c.LLMConfig != nil {
		out.LLMConfig = make(map[string]any, len(c.LLMConfig))
		for k, v := range c.LLMConfig {
			out.LLMConfig[k] = v
		}
	}
	return out
}
