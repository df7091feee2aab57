package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
)

// shouldRetryKind reports whether a failure of this apperr.Kind is transient
// (network, rate limit, provider 5xx) and worth another attempt, mirroring
// the retry/no-retry split the teacher's HTTP client applies to upstream
// errors: auth and malformed-request failures surface immediately, timeouts
// and rate limits are retried.
func shouldRetryKind(kind apperr.Kind) bool {
	switch kind {
	case apperr.KindLLMUnavailable, apperr.KindLLMRateLimited:
		return true
	default:
		return false
	}
}

// classifyProviderError maps a raw error from a Provider call into the
// taxonomy's LLM-specific kinds, the same way the teacher's classifyError
// distinguishes timeout/network/http-status failures before deciding
// whether to retry.
func classifyProviderError(err error) apperr.Kind {
	if err == nil {
		return apperr.KindInternal
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.KindLLMUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.KindLLMUnavailable
	}
	return apperr.KindInternal
}

// backoffDuration returns the delay before retry attempt n (1-indexed),
// doubling from base each attempt: attempt 1 waits base, attempt 2 waits
// 2*base, attempt 3 waits 4*base — matching SPEC_FULL.md's stated 1s/2s/4s
// default schedule when base is 1s.
func backoffDuration(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := 1 << (attempt - 1)
	return time.Duration(factor) * base
}
