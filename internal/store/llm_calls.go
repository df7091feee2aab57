package store

import (
	"context"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/google/uuid"
)

// InsertLLMCall writes one audit row. It is called for every attempted
// provider call regardless of outcome, satisfying the LLM audit
// completeness invariant; callers populate Error on failure instead of
// skipping the call.
func (s *Store) InsertLLMCall(ctx context.Context, call LLMCall) (string, error) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_calls (id, session_id, provider, model, latency_ms, input_tokens, output_tokens,
			request_digest, response_digest, error, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.SessionID, call.Provider, call.Model, call.LatencyMS, call.InputTokens, call.OutputTokens,
		call.RequestDigest, call.ResponseDigest, call.Error, timeToMS(call.CreatedAt),
	)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorageIO, "insert llm_calls row", err)
	}
	return call.ID, nil
}

// ListLLMCallsForSession returns the audit trail for a session, oldest first.
func (s *Store) ListLLMCallsForSession(ctx context.Context, sessionID string) ([]LLMCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, provider, model, latency_ms, input_tokens, output_tokens,
			request_digest, response_digest, error, created_at_ms
		FROM llm_calls WHERE session_id = ? ORDER BY created_at_ms ASC`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "list llm_calls", err)
	}
	defer rows.Close()

	var out []LLMCall
	for rows.Next() {
		var c LLMCall
		var createdMS int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Provider, &c.Model, &c.LatencyMS, &c.InputTokens,
			&c.OutputTokens, &c.RequestDigest, &c.ResponseDigest, &c.Error, &createdMS); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan llm_calls row", err)
		}
		c.CreatedAt = msToTime(createdMS)
		out = append(out, c)
	}
	return out, rows.Err()
}
