// Package command implements the Command Surface: a typed Go facade over
// every operation a host adapter exposes to users, so the adapter itself
// stays a thin translation layer and business logic lives in one place.
// No wire protocol is specified here (no HTTP/IPC) — each method is a
// direct, synchronous call a host (tray app, CLI, future HTTP handler)
// invokes.
package command

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/deskrecall/deskrecalld/internal/analysis"
	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/cache"
	"github.com/deskrecall/deskrecalld/internal/capture"
	"github.com/deskrecall/deskrecalld/internal/config"
	"github.com/deskrecall/deskrecalld/internal/llm"
	"github.com/deskrecall/deskrecalld/internal/llm/providers"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/retention"
	"github.com/deskrecall/deskrecalld/internal/scheduler"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/deskrecall/deskrecalld/internal/video"
	"github.com/rs/zerolog"
)

// Store is the subset of internal/store.Store the facade reads and writes
// directly, beyond what it hands to collaborators.
type Store interface {
	QueryActivities(ctx context.Context, from, to time.Time) ([]store.ActivityRollup, error)
	QueryDaySessions(ctx context.Context, date time.Time, deviceFilter string) ([]store.Session, error)
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
	ListSessionsByState(ctx context.Context, state analysis.State, limit int) ([]store.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	FramePathsForSession(ctx context.Context, sessionID string) ([]string, error)
	AddManualTag(ctx context.Context, sessionID string, tag store.ActivityTag) error
	StorageStats(ctx context.Context) (store.StorageStats, error)
	FramesRoot() string
	VideosRoot() string
}

// SystemStatus summarizes the running state of every long-lived component,
// backing get_system_status.
type SystemStatus struct {
	CaptureState   capture.State
	MissedFrames   uint64
	LastCaptureErr string
	ActiveProvider string
}

// activityCacheTTL bounds how stale a get_activities response may be: long
// enough to absorb a burst of repeated range queries from a UI re-render,
// short enough that a session closed moments ago shows up promptly.
const activityCacheTTL = 30 * time.Second

// Facade implements every operation named in §6's command surface.
type Facade struct {
	store         Store
	cfgMgr        *config.Manager
	capture       *capture.Engine
	registry      *llm.Registry
	orchestrator  *llm.Orchestrator
	synthesizer   *video.Synthesizer
	retention     *retention.Worker
	scheduler     *scheduler.Scheduler
	activityCache cache.Cache
	logger        zerolog.Logger
}

// New constructs a Facade wiring every collaborator the command surface
// touches. The activity roll-up is cached in-process since it re-scans the
// sessions table on every call and a host UI polls it on a short interval.
func New(
	st Store,
	cfgMgr *config.Manager,
	cap *capture.Engine,
	reg *llm.Registry,
	orch *llm.Orchestrator,
	synth *video.Synthesizer,
	ret *retention.Worker,
	sched *scheduler.Scheduler,
) *Facade {
	return &Facade{
		store:         st,
		cfgMgr:        cfgMgr,
		capture:       cap,
		registry:      reg,
		orchestrator:  orch,
		synthesizer:   synth,
		retention:     ret,
		scheduler:     sched,
		activityCache: cache.NewMemoryCache(time.Minute),
		logger:        log.WithComponent("command"),
	}
}

// GetActivities returns the per-day activity roll-up for [from, to),
// serving a cached result when one is fresh.
func (f *Facade) GetActivities(ctx context.Context, from, to time.Time) ([]store.ActivityRollup, error) {
	key := from.Format(time.RFC3339) + "|" + to.Format(time.RFC3339)
	if cached, ok := f.activityCache.Get(key); ok {
		return cached.([]store.ActivityRollup), nil
	}
	rollups, err := f.store.QueryActivities(ctx, from, to)
	if err != nil {
		return nil, err
	}
	f.activityCache.Set(key, rollups, activityCacheTTL)
	return rollups, nil
}

// GetDaySessions returns every session starting on the given day, optionally
// filtered to one device.
func (f *Facade) GetDaySessions(ctx context.Context, date time.Time, deviceFilter string) ([]store.Session, error) {
	return f.store.QueryDaySessions(ctx, date, deviceFilter)
}

// GetSessionDetail returns one session by id.
func (f *Facade) GetSessionDetail(ctx context.Context, sessionID string) (store.Session, error) {
	return f.store.GetSession(ctx, sessionID)
}

// ToggleCapture pauses or resumes the Capture Engine.
func (f *Facade) ToggleCapture(enabled bool) {
	if enabled {
		f.capture.Resume()
		return
	}
	f.capture.Pause()
}

// TriggerAnalysis enqueues every closed-but-unanalyzed session for
// analysis, the same discovery the Scheduler runs on its own cadence, but
// on demand.
func (f *Facade) TriggerAnalysis(ctx context.Context) error {
	// -1: SQLite's LIMIT -1 means unbounded, unlike LIMIT 0 which returns
	// nothing.
	sessions, err := f.store.ListSessionsByState(ctx, analysis.StateClosed, -1)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		sessionID := sess.ID
		if err := f.scheduler.Enqueue(ctx, scheduler.JobAnalysis, func(ctx context.Context) error {
			return f.orchestrator.AnalyzeSession(ctx, sessionID, false)
		}); err != nil {
			return err
		}
	}
	return nil
}

// RetrySessionAnalysis forces re-analysis of one session regardless of its
// current analysis_state (other than analyzing, which the lease guards
// against).
func (f *Facade) RetrySessionAnalysis(ctx context.Context, sessionID string) error {
	return f.scheduler.Enqueue(ctx, scheduler.JobAnalysis, func(ctx context.Context) error {
		return f.orchestrator.AnalyzeSession(ctx, sessionID, true)
	})
}

// DeleteSession removes a session's video, frames, and row, files before
// row per the no-orphan-file invariant.
func (f *Facade) DeleteSession(ctx context.Context, sessionID string) error {
	sess, err := f.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	framePaths, err := f.store.FramePathsForSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if sess.VideoPath != "" {
		if err := removeIfExists(f.store.VideosRoot(), sess.VideoPath); err != nil {
			return apperr.Wrap(apperr.KindStorageIO, "remove session video", err)
		}
	}
	for _, p := range framePaths {
		if err := removeIfExists(f.store.FramesRoot(), p); err != nil {
			return apperr.Wrap(apperr.KindStorageIO, "remove session frame", err)
		}
	}

	if err := f.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	f.activityCache.Clear()
	return nil
}

// GenerateVideo synthesizes a review video for a session at the given
// playback speed (1-50x), using the current config for CRF and timestamp
// overlay, and enqueues the encode on the bounded video lane.
func (f *Facade) GenerateVideo(ctx context.Context, sessionID string, speedMultiplier int) error {
	cfg := f.cfgMgr.Current()
	req := video.Request{
		SessionID:              sessionID,
		FramesRoot:             f.store.FramesRoot(),
		SpeedMultiplier:        speedMultiplier,
		CRF:                    cfg.VideoConfig.Quality,
		TimestampOverlay:       cfg.VideoConfig.AddTimestamp,
		CaptureIntervalSeconds: float64(cfg.CaptureIntervalSeconds),
	}
	return f.scheduler.Enqueue(ctx, scheduler.JobVideo, func(ctx context.Context) error {
		_, err := f.synthesizer.Synthesize(ctx, req)
		return err
	})
}

// AddManualTag appends a user-supplied tag to a session.
func (f *Facade) AddManualTag(ctx context.Context, sessionID string, tag store.ActivityTag) error {
	if err := f.store.AddManualTag(ctx, sessionID, tag); err != nil {
		return err
	}
	f.activityCache.Clear()
	return nil
}

// UpdateConfig validates and applies a new configuration, never partially.
func (f *Facade) UpdateConfig(cfg config.Config) error {
	return f.cfgMgr.Apply(cfg)
}

// GetAppConfig returns the live configuration.
func (f *Facade) GetAppConfig() config.Config {
	return f.cfgMgr.Current()
}

// GetSystemStatus reports the running state of capture and the active LLM
// provider.
func (f *Facade) GetSystemStatus() SystemStatus {
	provider := ""
	if p, err := f.registry.Active(); err == nil && p != nil {
		provider = p.Name()
	}
	return SystemStatus{
		CaptureState:   f.capture.State(),
		MissedFrames:   f.capture.MissedFrames(),
		LastCaptureErr: f.capture.LastError(),
		ActiveProvider: provider,
	}
}

// CleanupStorage runs a retention pass immediately, at the currently
// configured retention_days.
func (f *Facade) CleanupStorage(ctx context.Context) error {
	cfg := f.cfgMgr.Current()
	return f.scheduler.Enqueue(ctx, scheduler.JobRetention, func(ctx context.Context) error {
		return f.retention.RunOnce(ctx, cfg.RetentionDays)
	})
}

// GetStorageStats reports current on-disk and in-database usage.
func (f *Facade) GetStorageStats(ctx context.Context) (store.StorageStats, error) {
	return f.store.StorageStats(ctx)
}

// TestLLMAPI builds a fresh, unregistered instance of the named provider,
// configures it with the supplied settings, and makes one minimal call to
// confirm the credentials and endpoint work — independent of whatever
// provider is currently active, so testing a candidate config never
// disturbs live analysis.
func (f *Facade) TestLLMAPI(ctx context.Context, providerName string, settings map[string]any) error {
	p, err := newProviderInstance(providerName)
	if err != nil {
		return err
	}
	if err := p.Configure(settings); err != nil {
		return err
	}
	if !p.IsConfigured() {
		return apperr.New(apperr.KindConfigInvalid, "provider reports not configured after Configure")
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = p.Call(callCtx, llm.Request{
		SystemPrompt: "Respond with the single word ok.",
		UserPrompt:   "ok",
	})
	return err
}

// GetDaySummary returns a day's sessions, optionally forcing re-analysis of
// every closed, analyzed or failed session on that day first.
func (f *Facade) GetDaySummary(ctx context.Context, date time.Time, forceRefresh bool) ([]store.Session, error) {
	if forceRefresh {
		sessions, err := f.store.QueryDaySessions(ctx, date, "")
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if sess.AnalysisState != analysis.StateClosed && sess.AnalysisState != analysis.StateAnalyzed && sess.AnalysisState != analysis.StateFailed {
				continue
			}
			sessionID := sess.ID
			if err := f.scheduler.Enqueue(ctx, scheduler.JobAnalysis, func(ctx context.Context) error {
				return f.orchestrator.AnalyzeSession(ctx, sessionID, true)
			}); err != nil {
				return nil, err
			}
		}
	}
	return f.store.QueryDaySessions(ctx, date, "")
}

func newProviderInstance(name string) (llm.Provider, error) {
	switch name {
	case "chat_completions":
		return providers.NewChatCompletions(name), nil
	case "anthropic":
		return providers.NewAnthropic(), nil
	case "cli":
		return providers.NewCLI(), nil
	default:
		return nil, apperr.New(apperr.KindConfigInvalid, "unknown llm provider").WithEntity(name)
	}
}

func removeIfExists(root, rel string) error {
	if rel == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(root, rel)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
