// Package metrics exposes Prometheus counters and gauges for the capture,
// segmentation, analysis, synthesis, and retention pipeline. It follows the
// teacher's convention throughout: package-level promauto.New*Vec
// registrations plus small Record*/Set*/Inc* helper functions per concern,
// all declared in this one file and grouped by component.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptureFramesTotal counts every FrameRecord written, by display and
	// whether it was classified black.
	CaptureFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_capture_frames_total",
		Help: "Total frames captured, by display index and black-frame classification.",
	}, []string{"display", "is_black"})

	// CaptureMissedTotal counts ticks skipped because the previous tick was
	// still running (§4.B back-pressure: capture must not queue frames).
	CaptureMissedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskrecall_capture_missed_total",
		Help: "Total capture ticks skipped due to a still-running previous tick.",
	})

	// CaptureErrorsTotal counts non-fatal capture failures by apperr.Kind.
	CaptureErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_capture_errors_total",
		Help: "Total non-fatal capture errors, by error kind.",
	}, []string{"kind"})

	// CaptureState reports the Capture Engine's current posture (the active
	// state of idle/capturing/paused is 1, the others 0), mirroring the teacher's
	// one-hot state-gauge convention.
	CaptureState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deskrecall_capture_state",
		Help: "Current capture engine state (one-hot: idle/capturing/paused).",
	}, []string{"state"})
)

var captureStates = []string{"idle", "capturing", "paused"}

// SetCaptureState records the active Capture Engine state, zeroing every
// other known state the same way the teacher's circuit-breaker gauge does.
func SetCaptureState(active string) {
	for _, s := range captureStates {
		v := 0.0
		if s == active {
			v = 1.0
		}
		CaptureState.WithLabelValues(s).Set(v)
	}
}

var (
	// SegmentSessionsClosedTotal counts sessions the Segmenter closes, by
	// the trigger that closed them (idle_gap, max_window, device_change,
	// flush) and whether the closed session was marked too_short.
	SegmentSessionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_segment_sessions_closed_total",
		Help: "Total sessions closed by the Segmenter, by trigger and too_short outcome.",
	}, []string{"trigger", "too_short"})

	// SegmentOpenSessionAge reports the wall-clock age of the currently
	// open session per device, sampled each Segmenter tick.
	SegmentOpenSessionAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deskrecall_segment_open_session_age_seconds",
		Help: "Age in seconds of the currently open session, by device identity.",
	}, []string{"device"})
)

var (
	// LLMCallsTotal counts every attempted provider call, by provider and
	// outcome (ok/error), backing the audit-completeness invariant
	// alongside the Store's llm_calls table.
	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_llm_calls_total",
		Help: "Total LLM provider calls attempted, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// LLMCallLatencySeconds observes per-call latency, by provider.
	LLMCallLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deskrecall_llm_call_latency_seconds",
		Help:    "LLM provider call latency in seconds, by provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// LLMRetriesTotal counts retry attempts, by provider.
	LLMRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_llm_retries_total",
		Help: "Total LLM provider call retries, by provider.",
	}, []string{"provider"})

	// LLMSchemaRepairsTotal counts schema-repair rounds triggered, by
	// provider and whether the repair round itself succeeded.
	LLMSchemaRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_llm_schema_repairs_total",
		Help: "Total LLM schema-repair rounds, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// SessionAnalysisState is a gauge of the number of sessions in each
	// analysis_state, by state. No component of the daemon sets it.
	SessionAnalysisState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deskrecall_session_analysis_state",
		Help: "Current count of sessions in each analysis_state.",
	}, []string{"state"})
)

var (
	// VideoSynthesisTotal counts synthesis attempts, by outcome
	// (ok/encoder_missing/encoder_failed/encoder_timeout).
	VideoSynthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_video_synthesis_total",
		Help: "Total video synthesis attempts, by outcome.",
	}, []string{"outcome"})

	// VideoSynthesisDurationSeconds observes wall-clock encode duration.
	VideoSynthesisDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deskrecall_video_synthesis_duration_seconds",
		Help:    "Video synthesis wall-clock duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// VideoWorkerPoolInUse tracks the cross-session encoder worker pool
	// occupancy.
	VideoWorkerPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deskrecall_video_worker_pool_in_use",
		Help: "Current number of in-use video synthesis worker pool slots.",
	})
)

var (
	// RetentionDeletedSessionsTotal counts sessions pruned by age (trigger
	// age_cutoff). Files removed by the orphan-file scan are counted in
	// RetentionOrphanFilesDeletedTotal instead.
	RetentionDeletedSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_retention_deleted_sessions_total",
		Help: "Total sessions deleted by Retention, by trigger (age_cutoff).",
	}, []string{"trigger"})

	// RetentionOrphanFilesDeletedTotal counts files removed by the orphan
	// scan, by root (frames/videos).
	RetentionOrphanFilesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_retention_orphan_files_deleted_total",
		Help: "Total orphan files deleted during retention's reconciliation scan, by root.",
	}, []string{"root"})

	// RetentionRunDurationSeconds observes one retention pass's wall-clock
	// duration.
	RetentionRunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deskrecall_retention_run_duration_seconds",
		Help:    "Retention worker run duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// StorageBytes reports the Store's latest StorageStats, by component
	// (db, frames, videos).
	StorageBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deskrecall_storage_bytes",
		Help: "Current on-disk/in-database storage usage in bytes, by component.",
	}, []string{"component"})
)

var (
	// SchedulerOnDemandQueueDepth reports the Scheduler's FIFO on-demand
	// queue depth, by job kind (capture/analysis/video/retention).
	SchedulerOnDemandQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deskrecall_scheduler_queue_depth",
		Help: "Current on-demand job queue depth, by kind.",
	}, []string{"kind"})

	// SchedulerTaskDurationSeconds observes one periodic task run's
	// duration, by task name (capture/segment/analysis_discovery).
	SchedulerTaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deskrecall_scheduler_task_duration_seconds",
		Help:    "Periodic task run duration in seconds, by task.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_proc_terminate_total",
		Help: "Total process-group termination signals, by signal and result.",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskrecall_proc_wait_total",
		Help: "Total process-group wait outcomes after termination, by outcome.",
	}, []string{"outcome"})
)

// IncProcTerminate counts one termination signal sent by procgroup.KillGroup.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts one wait outcome observed by procgroup.KillGroup.
func IncProcWait(outcome string) { procWaitTotal.WithLabelValues(outcome).Inc() }
