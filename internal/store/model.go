// Package store implements the single authoritative persistence layer: the
// only writer of frames, sessions, activity tags, timeline cards, the LLM
// call audit log, and leases. Every other component reads paths and state
// through this package rather than caching them across restarts.
package store

import (
	"time"

	"github.com/deskrecall/deskrecalld/internal/analysis"
)

// DeviceType identifies the OS family a session was captured on.
type DeviceType string

const (
	DeviceWindows DeviceType = "windows"
	DeviceMacOS   DeviceType = "macos"
	DeviceLinux   DeviceType = "linux"
	DeviceUnknown DeviceType = "unknown"
)

// FrameRecord is a single compressed screenshot.
type FrameRecord struct {
	ID        int64
	Timestamp time.Time // UTC, millisecond precision
	FilePath  string    // relative to the frames root
	Display   int
	Width     int
	Height    int
	ByteSize  int64
	IsBlack   bool
	SessionID string // empty until bound by the Segmenter
}

// ActivityTag labels part or all of a session.
type ActivityTag struct {
	Category         analysis.Category
	Confidence       float64 // [0,1]
	Keywords         []string
	ProductivityScore *int // [0,100], optional
	FocusScore        *int // [0,100], optional
}

// TimelineCard is a labeled sub-interval inside a session.
type TimelineCard struct {
	Start             time.Time
	End               time.Time
	Category          analysis.Category
	Title             string
	Summary           string
	DetailedSummary   string
	Distractions      []string
	Apps              []string
	VideoPreviewPath  string // optional, empty when absent
}

// Session is a contiguous activity window.
type Session struct {
	ID              string
	StartTime       time.Time
	EndTime         time.Time
	DeviceName      string
	DeviceType      DeviceType
	Title           string
	Summary         string
	DetailedSummary string
	Tags            []ActivityTag
	TimelineCards   []TimelineCard
	VideoPath       string // empty when not yet synthesized
	AnalysisState   analysis.State
	FrameCount      int
	LastError       string
}

// LLMCall is an audit record of one provider invocation, written regardless
// of outcome.
type LLMCall struct {
	ID              string
	SessionID       string
	Provider        string
	Model           string
	LatencyMS       int64
	InputTokens     int
	OutputTokens    int
	RequestDigest   string
	ResponseDigest  string
	Error           string
	CreatedAt       time.Time
}

// Lease is a short-lived exclusive claim on an entity (a session analysis,
// a video synthesis, the single-active-instance guard), recorded in the
// Store to prevent concurrent mutation.
type Lease interface {
	Key() string
	Owner() string
	ExpiresAt() time.Time
}

// ActivityRollup is one day's worth of aggregated activity.
type ActivityRollup struct {
	Date          string // YYYY-MM-DD
	SessionCount  int
	TotalMinutes  float64
	TagMix        map[analysis.Category]int
}

// StorageStats summarizes on-disk and in-database usage.
type StorageStats struct {
	DBBytes      int64
	FramesBytes  int64
	VideosBytes  int64
	FrameCount   int64
	SessionCount int64
}
