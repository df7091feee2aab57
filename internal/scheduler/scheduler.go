// Package scheduler owns the four independent periodic tasks — capture,
// segmentation, analysis discovery, retention — plus an on-demand FIFO
// queue with per-kind bounded concurrency. Grounded on the teacher's
// internal/daemon.App: an errgroup of independent ticker goroutines, a
// config-driven ticker.Reset on interval change, and a bounded-timeout
// shutdown.
package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/deskrecall/deskrecalld/internal/analysis"
	"github.com/deskrecall/deskrecalld/internal/capture"
	"github.com/deskrecall/deskrecalld/internal/config"
	"github.com/deskrecall/deskrecalld/internal/llm"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/metrics"
	"github.com/deskrecall/deskrecalld/internal/retention"
	"github.com/deskrecall/deskrecalld/internal/segment"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/deskrecall/deskrecalld/internal/video"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// JobKind identifies one of the on-demand queue's bounded lanes.
type JobKind string

const (
	JobCapture   JobKind = "capture"
	JobAnalysis  JobKind = "analysis"
	JobVideo     JobKind = "video"
	JobRetention JobKind = "retention"
)

// defaultConcurrency matches §4.F's fixed per-kind bounds.
var defaultConcurrency = map[JobKind]int64{
	JobCapture:   1,
	JobAnalysis:  2,
	JobVideo:     2,
	JobRetention: 1,
}

// analysisDiscoveryBatch bounds how many closed sessions one analysis tick
// hands to the on-demand queue, so a backlog can't overwhelm it in one shot.
const analysisDiscoveryBatch = 10

// ShutdownGrace is the default deadline Stop waits for in-flight on-demand
// jobs before abandoning them.
const ShutdownGrace = 10 * time.Second

// Store is the subset of internal/store.Store the Scheduler needs directly
// (beyond what it hands to Capture/Segment/Video/LLM/Retention).
type Store interface {
	ListSessionsByState(ctx context.Context, state analysis.State, limit int) ([]store.Session, error)
}

// Scheduler wires the Capture Engine, Segmenter, LLM Orchestrator, Video
// Synthesizer, and Retention Worker into one cooperative runtime plus an
// on-demand job queue.
type Scheduler struct {
	store       Store
	capture     *capture.Engine
	segmenter   *segment.Segmenter
	orchestrator *llm.Orchestrator
	synthesizer *video.Synthesizer
	retention   *retention.Worker
	cfgMgr      *config.Manager
	logger      zerolog.Logger

	jobs    chan job
	limits  map[JobKind]*semaphore.Weighted
	done    chan struct{}
}

type job struct {
	kind JobKind
	run  func(ctx context.Context) error
}

// New constructs a Scheduler. The on-demand queue buffers up to 256 jobs;
// callers beyond that block on Enqueue, applying natural back-pressure.
func New(
	st Store,
	cap *capture.Engine,
	seg *segment.Segmenter,
	orch *llm.Orchestrator,
	synth *video.Synthesizer,
	ret *retention.Worker,
	cfgMgr *config.Manager,
) *Scheduler {
	limits := make(map[JobKind]*semaphore.Weighted, len(defaultConcurrency))
	for k, n := range defaultConcurrency {
		limits[k] = semaphore.NewWeighted(n)
	}
	return &Scheduler{
		store:        st,
		capture:      cap,
		segmenter:    seg,
		orchestrator: orch,
		synthesizer:  synth,
		retention:    ret,
		cfgMgr:       cfgMgr,
		logger:       log.WithComponent("scheduler"),
		jobs:         make(chan job, 256),
		limits:       limits,
		done:         make(chan struct{}),
	}
}

// Enqueue submits an on-demand job of the given kind. It blocks if the
// queue is full; callers on a request path should pass a context with a
// reasonable timeout.
func (s *Scheduler) Enqueue(ctx context.Context, kind JobKind, run func(ctx context.Context) error) error {
	select {
	case s.jobs <- job{kind: kind, run: run}:
		metrics.SchedulerOnDemandQueueDepth.WithLabelValues(string(kind)).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return context.Canceled
	}
}

// Run starts every periodic task and the on-demand worker pool, and blocks
// until ctx is cancelled. Each periodic task is cooperative: a slow run
// only delays its own next tick, never the others.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { s.runCaptureLoop(ctx); return nil })
	g.Go(func() error { s.runSegmentationLoop(ctx); return nil })
	g.Go(func() error { s.runAnalysisDiscoveryLoop(ctx); return nil })
	g.Go(func() error { s.runRetentionLoop(ctx); return nil })

	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error { s.runJobWorker(ctx); return nil })
	}

	err := g.Wait()
	close(s.done)
	return err
}

// Stop flushes the segmenter's open session and waits up to grace for
// in-flight on-demand jobs to settle. Call after Run's context has been
// cancelled.
func (s *Scheduler) Stop(ctx context.Context, cfg config.Config, grace time.Duration) error {
	if grace <= 0 {
		grace = ShutdownGrace
	}
	flushCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	return s.segmenter.Flush(flushCtx, segment.Policy{
		IdleGap:          cfg.SegmentPolicy.IdleGap(),
		MaxSessionWindow: cfg.SegmentPolicy.MaxSessionWindow(),
		MinSessionLength: cfg.SegmentPolicy.MinSessionLength(),
	}, time.Now().UTC())
}

func (s *Scheduler) runCaptureLoop(ctx context.Context) {
	cfg := s.cfgMgr.Current()
	interval := time.Duration(cfg.CaptureIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	updates := s.cfgMgr.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg = <-updates:
			newInterval := time.Duration(cfg.CaptureIntervalSeconds) * time.Second
			if newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			start := time.Now()
			metrics.SetCaptureState(string(s.capture.State()))
			s.capture.Tick(ctx, capturePolicy(cfg))
			metrics.SchedulerTaskDurationSeconds.WithLabelValues("capture").Observe(time.Since(start).Seconds())
		}
	}
}

func (s *Scheduler) runSegmentationLoop(ctx context.Context) {
	cfg := s.cfgMgr.Current()
	interval := time.Duration(cfg.SummaryIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	updates := s.cfgMgr.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg = <-updates:
			newInterval := time.Duration(cfg.SummaryIntervalMinutes) * time.Minute
			if newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			start := time.Now()
			pol := segment.Policy{
				IdleGap:          cfg.SegmentPolicy.IdleGap(),
				MaxSessionWindow: cfg.SegmentPolicy.MaxSessionWindow(),
				MinSessionLength: cfg.SegmentPolicy.MinSessionLength(),
			}
			if err := s.segmenter.Tick(ctx, pol, time.Now().UTC()); err != nil {
				s.logger.Warn().Err(err).Msg("segmentation tick failed")
			}
			metrics.SchedulerTaskDurationSeconds.WithLabelValues("segment").Observe(time.Since(start).Seconds())
		}
	}
}

// runAnalysisDiscoveryLoop finds closed-but-unanalyzed sessions on the
// summary_interval cadence and hands each to the on-demand analysis lane;
// the lane's own concurrency bound (2) and the Orchestrator's per-session
// lease guarantee at most one analyze_frames in flight per session.
func (s *Scheduler) runAnalysisDiscoveryLoop(ctx context.Context) {
	cfg := s.cfgMgr.Current()
	interval := time.Duration(cfg.SummaryIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	updates := s.cfgMgr.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg = <-updates:
			newInterval := time.Duration(cfg.SummaryIntervalMinutes) * time.Minute
			if newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			start := time.Now()
			sessions, err := s.store.ListSessionsByState(ctx, analysis.StateClosed, analysisDiscoveryBatch)
			if err != nil {
				s.logger.Warn().Err(err).Msg("analysis discovery query failed")
				continue
			}
			for _, sess := range sessions {
				sessionID := sess.ID
				_ = s.Enqueue(ctx, JobAnalysis, func(ctx context.Context) error {
					return s.orchestrator.AnalyzeSession(ctx, sessionID, false)
				})
			}
			metrics.SchedulerTaskDurationSeconds.WithLabelValues("analysis_discovery").Observe(time.Since(start).Seconds())
		}
	}
}

func (s *Scheduler) runRetentionLoop(ctx context.Context) {
	cfg := s.cfgMgr.Current()
	interval := time.Duration(cfg.RetentionIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	updates := s.cfgMgr.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg = <-updates:
			newInterval := time.Duration(cfg.RetentionIntervalMinutes) * time.Minute
			if newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			retentionDays := cfg.RetentionDays
			_ = s.Enqueue(ctx, JobRetention, func(ctx context.Context) error {
				s.retention.Tick(ctx, retentionDays)
				return nil
			})
		}
	}
}

func (s *Scheduler) runJobWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			metrics.SchedulerOnDemandQueueDepth.WithLabelValues(string(j.kind)).Dec()
			sem := s.limits[j.kind]
			if sem == nil {
				sem = s.limits[JobCapture]
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			if err := j.run(ctx); err != nil {
				s.logger.Warn().Err(err).Str("kind", string(j.kind)).Msg("on-demand job failed")
			}
			sem.Release(1)
		}
	}
}

func capturePolicy(cfg config.Config) capture.Policy {
	excluded := make(map[int]bool, len(cfg.CaptureSettings.ExcludedDisplays))
	for _, d := range cfg.CaptureSettings.ExcludedDisplays {
		excluded[d] = true
	}
	threshold := 0.0
	if cfg.CaptureSettings.DetectBlackScreen {
		threshold = float64(cfg.CaptureSettings.BlackScreenThreshold)
	}
	return capture.Policy{
		Resolution:      capture.Resolution(cfg.CaptureSettings.Resolution),
		Quality:         cfg.CaptureSettings.ImageQuality,
		BlackThreshold:  threshold,
		SkipBlackWrites: false,
		ExcludeDisplays: excluded,
	}
}
