package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/rs/zerolog"
)

const leaseOwnerPrefix = "llm-analysis:"

// Store is the subset of internal/store.Store the Orchestrator needs.
type Store interface {
	ListFramesInSession(ctx context.Context, sessionID string, stride int) ([]store.FrameRecord, error)
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
	StartAnalysis(ctx context.Context, sessionID string, forced bool) error
	UpdateSessionAnalysis(ctx context.Context, sessionID string, outcome store.SessionAnalysisOutcome) error
	InsertLLMCall(ctx context.Context, call store.LLMCall) (string, error)
	TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (store.Lease, bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error
}

const systemPrompt = `You are analyzing a desktop screen-recording session to produce a structured activity summary. Respond with a single JSON object matching the requested schema and nothing else.`

// Orchestrator applies the shared sampling/prompt/retry/repair/audit policy
// around whichever Provider is currently active in its Registry.
type Orchestrator struct {
	store      Store
	registry   *Registry
	framesRoot string
	policy     Policy
	logger     zerolog.Logger
}

// New constructs an Orchestrator. framesRoot resolves FrameRecord.FilePath
// for providers whose Capabilities().AcceptsInlineImages is true.
func New(st Store, reg *Registry, framesRoot string, policy Policy) *Orchestrator {
	return &Orchestrator{
		store:      st,
		registry:   reg,
		framesRoot: framesRoot,
		policy:     policy,
		logger:     log.WithComponent("llm"),
	}
}

// AnalyzeSession runs analyze_frames for one session: acquire the
// per-session analysis lease, sample its frames, call the active provider
// with retry and schema repair, persist the outcome, and release the
// lease. forced allows re-analysis of an already-analyzed session.
func (o *Orchestrator) AnalyzeSession(ctx context.Context, sessionID string, forced bool) error {
	owner := leaseOwnerPrefix + sessionID
	lease, ok, err := o.store.TryAcquireLease(ctx, analysisLeaseKey(sessionID), owner, o.policy.LeaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindInternal, "analysis already in progress for session").WithEntity(sessionID)
	}
	defer func() { _ = o.store.ReleaseLease(ctx, lease.Key(), owner) }()

	if err := o.store.StartAnalysis(ctx, sessionID, forced); err != nil {
		return err
	}

	outcome := o.analyze(ctx, sessionID)
	return o.store.UpdateSessionAnalysis(ctx, sessionID, outcome)
}

func (o *Orchestrator) analyze(ctx context.Context, sessionID string) store.SessionAnalysisOutcome {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return store.SessionAnalysisOutcome{Success: false, Error: err.Error()}
	}

	records, err := o.store.ListFramesInSession(ctx, sessionID, 1)
	if err != nil {
		return store.SessionAnalysisOutcome{Success: false, Error: err.Error()}
	}
	sampled := sampleFrames(records, o.policy.SampleK)
	if len(sampled) == 0 {
		return store.SessionAnalysisOutcome{Success: false, Error: "no frames available to analyze"}
	}

	provider, err := o.registry.Active()
	if err != nil {
		return store.SessionAnalysisOutcome{Success: false, Error: err.Error()}
	}

	frames, err := o.loadFrames(sampled, provider.Capabilities())
	if err != nil {
		return store.SessionAnalysisOutcome{Success: false, Error: err.Error()}
	}

	req := Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   analyzeFramesUserPrompt(len(frames), session.EndTime.Sub(session.StartTime)),
		Frames:       frames,
	}

	var wire wireSummary
	callErr := o.callWithRetryAndRepair(ctx, sessionID, provider, req, &wire)
	if callErr != nil {
		return store.SessionAnalysisOutcome{Success: false, Error: callErr.Error()}
	}
	summary := wire.toSessionSummary(session.StartTime)

	return store.SessionAnalysisOutcome{
		Success:         true,
		Title:           summary.Title,
		Summary:         summary.Summary,
		DetailedSummary: summary.DetailedSummary,
		Tags:            summary.Tags,
		TimelineCards:   summary.TimelineCards,
	}
}

func (o *Orchestrator) loadFrames(records []store.FrameRecord, caps Capabilities) ([]Frame, error) {
	out := make([]Frame, 0, len(records))
	for _, r := range records {
		f := Frame{Path: r.FilePath, Timestamp: r.Timestamp}
		if caps.AcceptsInlineImages {
			data, err := os.ReadFile(filepath.Join(o.framesRoot, r.FilePath))
			if err != nil {
				return nil, apperr.Wrap(apperr.KindStorageIO, "read frame for analysis: "+r.FilePath, err)
			}
			f.Bytes = data
		}
		out = append(out, f)
	}
	return out, nil
}

// callWithRetryAndRepair performs the Orchestrator's retry/backoff policy
// around one provider Call, then its one-round schema-repair policy around
// parsing the response, auditing every attempt via InsertLLMCall regardless
// of outcome.
func (o *Orchestrator) callWithRetryAndRepair(ctx context.Context, sessionID string, provider Provider, req Request, out any) error {
	var lastErr error
	var resp Response

	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.policy.CallTimeout)
		start := time.Now()
		r, err := provider.Call(callCtx, req)
		latency := time.Since(start)
		cancel()

		o.audit(ctx, sessionID, provider.Name(), r, latency, err)

		if err == nil {
			resp = r
			lastErr = nil
			break
		}
		lastErr = err
		if !shouldRetryKind(classifyProviderError(err)) || attempt == o.policy.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoffDuration(o.policy.BaseBackoff, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if lastErr != nil {
		return lastErr
	}

	parseErr := extractJSON(resp.Text, out)
	if parseErr == nil {
		return nil
	}

	// One schema-repair round: re-ask with the parse error appended.
	repairReq := req
	repairReq.UserPrompt = fmt.Sprintf("%s\n\nYour previous response could not be parsed as JSON matching the schema (%v). Respond again with only the corrected JSON object.", req.UserPrompt, parseErr)
	start := time.Now()
	r2, err := provider.Call(ctx, repairReq)
	o.audit(ctx, sessionID, provider.Name(), r2, time.Since(start), err)
	if err != nil {
		return err
	}
	if err := extractJSON(r2.Text, out); err != nil {
		return apperr.Wrap(apperr.KindLLMBadSchema, "provider response did not match the expected schema after repair", err)
	}
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, sessionID, provider string, resp Response, latency time.Duration, callErr error) {
	call := store.LLMCall{
		SessionID:    sessionID,
		Provider:     provider,
		Model:        resp.Model,
		LatencyMS:    latency.Milliseconds(),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	if callErr != nil {
		call.Error = callErr.Error()
	}
	if _, err := o.store.InsertLLMCall(ctx, call); err != nil {
		o.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to record llm call audit row")
	}
}

func analysisLeaseKey(sessionID string) string {
	return "session:analysis:" + sessionID
}

func analyzeFramesUserPrompt(frameCount int, sessionDuration time.Duration) string {
	return fmt.Sprintf(`Analyze these %d sampled screenshots from one continuous desktop activity session lasting %s. Respond with a JSON object containing:
- title, summary, detailed_summary: strings describing the whole session
- tags: an array of {category, confidence, keywords, productivity_score, focus_score}
- timeline_cards: an array of sub-intervals partitioning or sub-dividing the session, each {start_offset_seconds, end_offset_seconds, category, title, summary, detailed_summary, distractions, apps}, with offsets measured from the start of the session in seconds

category must be one of: work, communication, learning, personal, idle, other.`, frameCount, sessionDuration.Round(time.Second))
}
