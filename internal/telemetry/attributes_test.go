// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestCaptureAttributes(t *testing.T) {
	attrs := CaptureAttributes(1, true)
	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}
	verifyIntAttribute(t, attrs, CaptureDisplayKey, 1)
	verifyBoolAttribute(t, attrs, CaptureIsBlackKey, true)
}

func TestSessionAttributes(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		device     string
		state      string
		frameCount int
		wantLen    int
	}{
		{
			name:       "all fields",
			sessionID:  "sess-1",
			device:     "windows",
			state:      "analyzed",
			frameCount: 42,
			wantLen:    4,
		},
		{
			name:      "only id",
			sessionID: "sess-1",
			wantLen:   1,
		},
		{
			name:    "empty fields",
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := SessionAttributes(tt.sessionID, tt.device, tt.state, tt.frameCount)
			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.sessionID != "" {
				verifyAttribute(t, attrs, SessionIDKey, tt.sessionID)
			}
			if tt.device != "" {
				verifyAttribute(t, attrs, SessionDeviceKey, tt.device)
			}
			if tt.state != "" {
				verifyAttribute(t, attrs, SessionStateKey, tt.state)
			}
		})
	}
}

func TestLLMCallAttributes(t *testing.T) {
	attrs := LLMCallAttributes("anthropic", "claude-3", 2, 1200, 300)
	if len(attrs) != 5 {
		t.Fatalf("Expected 5 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, LLMProviderKey, "anthropic")
	verifyAttribute(t, attrs, LLMModelKey, "claude-3")
	verifyIntAttribute(t, attrs, LLMAttemptKey, 2)
	verifyIntAttribute(t, attrs, LLMInputTokens, 1200)
	verifyIntAttribute(t, attrs, LLMOutputTokens, 300)
}

func TestVideoSynthesisAttributes(t *testing.T) {
	attrs := VideoSynthesisAttributes("sess-1", 23, 8)
	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, VideoSessionIDKey, "sess-1")
	verifyIntAttribute(t, attrs, VideoCRFKey, 23)
	verifyIntAttribute(t, attrs, VideoSpeedKey, 8)
}

func TestJobAttributes(t *testing.T) {
	attrs := JobAttributes("retention", "completed", 45000)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, JobTypeKey, "retention")
	verifyAttribute(t, attrs, JobStatusKey, "completed")
	verifyInt64Attribute(t, attrs, JobDurationKey, 45000)
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "network_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "network_error")
}

func TestAttributeKeys_Consistency(t *testing.T) {
	// Verify every attribute key constant is non-empty
	keys := []string{
		CaptureDisplayKey,
		SessionIDKey,
		LLMProviderKey,
		VideoSessionIDKey,
		JobTypeKey,
		ErrorKey,
	}

	for _, key := range keys {
		if key == "" {
			t.Errorf("Expected non-empty attribute key")
		}
	}
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int64) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != expectedValue {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
