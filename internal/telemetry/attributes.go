// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the deskrecalld application.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Capture attributes
	CaptureDisplayKey = "capture.display"
	CaptureIsBlackKey = "capture.is_black"

	// Session attributes
	SessionIDKey      = "session.id"
	SessionDeviceKey  = "session.device"
	SessionStateKey   = "session.analysis_state"
	SessionFrameCount = "session.frame_count"

	// LLM call attributes
	LLMProviderKey  = "llm.provider"
	LLMModelKey     = "llm.model"
	LLMAttemptKey   = "llm.attempt"
	LLMInputTokens  = "llm.input_tokens"
	LLMOutputTokens = "llm.output_tokens"

	// Video synthesis attributes
	VideoSessionIDKey = "video.session_id"
	VideoCRFKey       = "video.crf"
	VideoSpeedKey     = "video.speed_multiplier"

	// Job attributes (periodic/on-demand scheduler tasks)
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// CaptureAttributes creates span attributes for a single capture tick.
func CaptureAttributes(display int, isBlack bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(CaptureDisplayKey, display),
		attribute.Bool(CaptureIsBlackKey, isBlack),
	}
}

// SessionAttributes creates span attributes identifying a session.
func SessionAttributes(sessionID, device, state string, frameCount int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if device != "" {
		attrs = append(attrs, attribute.String(SessionDeviceKey, device))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(SessionStateKey, state))
	}
	if frameCount > 0 {
		attrs = append(attrs, attribute.Int(SessionFrameCount, frameCount))
	}
	return attrs
}

// LLMCallAttributes creates span attributes for a single provider call attempt.
func LLMCallAttributes(provider, model string, attempt, inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LLMProviderKey, provider),
		attribute.String(LLMModelKey, model),
		attribute.Int(LLMAttemptKey, attempt),
		attribute.Int(LLMInputTokens, inputTokens),
		attribute.Int(LLMOutputTokens, outputTokens),
	}
}

// VideoSynthesisAttributes creates span attributes for a video synthesis run.
func VideoSynthesisAttributes(sessionID string, crf, speedMultiplier int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VideoSessionIDKey, sessionID),
		attribute.Int(VideoCRFKey, crf),
		attribute.Int(VideoSpeedKey, speedMultiplier),
	}
}

// JobAttributes creates span attributes for a scheduler task run.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
