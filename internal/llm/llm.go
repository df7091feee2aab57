// Package llm implements the LLM Orchestrator: a provider-agnostic policy
// layer (sampling, prompt assembly, retry/backoff, schema repair, audit)
// wrapped around a pluggable vision-provider registry. Providers themselves
// live under internal/llm/providers; this package never imports a specific
// vendor SDK.
package llm

import (
	"context"
	"time"

	"github.com/deskrecall/deskrecalld/internal/store"
)

// Frame is the minimal per-frame payload a Provider needs: its path (for
// providers that accept a URL/file reference) and its bytes (for providers
// that require an inlined image).
type Frame struct {
	Path      string
	Bytes     []byte
	Timestamp time.Time
}

// SessionSummary is a provider's analysis of one session's sampled frames:
// analyze_frames' title/summary/tags plus generate_timeline's card list,
// produced from the same request/response round-trip rather than a second
// provider call (see wireSummary in wire.go).
type SessionSummary struct {
	Title           string
	Summary         string
	DetailedSummary string
	Tags            []store.ActivityTag
	TimelineCards   []store.TimelineCard
}

// VideoSegment is a sub-interval of a session identified during
// segment_video, prior to card generation.
type VideoSegment struct {
	StartOffset time.Duration
	EndOffset   time.Duration
	Category    string
}

// Capabilities reports what a provider supports so the Orchestrator can
// adapt payload construction (inline bytes vs. path reference) and skip
// operations a provider cannot perform.
type Capabilities struct {
	AcceptsInlineImages bool
	AcceptsImageURLs    bool
	SupportsDaySummary  bool
}

// Request is one fully-assembled call to a provider: a system prompt plus
// a schema description (built by the Orchestrator, overridable per provider
// via config), and the image payload for operations that need frames.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Frames       []Frame
}

// Response is a provider's raw answer plus whatever usage accounting it
// reports. Text is expected to contain a JSON object, optionally wrapped in
// a fenced code block — the Orchestrator owns parsing it (see schema.go),
// not the Provider, so every provider is held to the same schema-repair
// policy regardless of how cooperative its output is.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the capability set every vision backend implements. The
// Orchestrator enforces sampling, retries, and schema repair uniformly
// around Call — a Provider only ever sees the fully-prepared request and
// returns (or fails to return) raw text.
type Provider interface {
	Name() string
	Configure(settings map[string]any) error
	IsConfigured() bool
	Capabilities() Capabilities
	Call(ctx context.Context, req Request) (Response, error)
}

// Policy configures the Orchestrator's shared, provider-independent
// behavior.
type Policy struct {
	SampleK       int           // max frames sampled per analysis, default 30
	MaxAttempts   int           // default 3
	BaseBackoff   time.Duration // default 1s, doubles each attempt
	CallTimeout   time.Duration // default 120s per provider call
	LeaseTTL      time.Duration // default 10m
}

// DefaultPolicy matches SPEC_FULL.md §4.E's stated defaults.
func DefaultPolicy() Policy {
	return Policy{
		SampleK:     30,
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		CallTimeout: 120 * time.Second,
		LeaseTTL:    10 * time.Minute,
	}
}
