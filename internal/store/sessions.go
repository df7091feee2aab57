package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/deskrecall/deskrecalld/internal/analysis"
	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/google/uuid"
)

// OpenSession opens a new session for (deviceName, deviceType) unless one is
// already open for that device identity, in which case the existing open
// session is returned instead — Open Question resolution: a single active
// session per device, no per-display multiplexing.
func (s *Store) OpenSession(ctx context.Context, deviceName string, deviceType DeviceType, start time.Time) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindStorageIO, "begin open-session transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanSession(tx.QueryRowContext(ctx, sessionSelectCols+`
		WHERE device_name = ? AND device_type = ? AND analysis_state = ?`,
		deviceName, deviceType, analysis.StateOpen))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.Wrap(apperr.KindStorageIO, "check for existing open session", err)
	}

	sess := Session{
		ID:            uuid.NewString(),
		StartTime:     start,
		EndTime:       start,
		DeviceName:    deviceName,
		DeviceType:    deviceType,
		AnalysisState: analysis.StateOpen,
	}

	if err := insertSession(ctx, tx, sess); err != nil {
		return Session{}, err
	}
	return sess, tx.Commit()
}

// CloseSession transitions an open session to closed at endTime, via the
// analysis FSM so the transition is validated the same way every other
// state change is.
func (s *Store) CloseSession(ctx context.Context, sessionID string, endTime time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "begin close-session transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := scanSession(tx.QueryRowContext(ctx, sessionSelectCols+"WHERE id = ?", sessionID))
	if err != nil {
		return mapNotFound(err, "session")
	}

	tr, err := analysis.Dispatch(analysis.Record{State: sess.AnalysisState}, analysis.EvClose)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "close session", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET end_time_ms = ?, analysis_state = ? WHERE id = ?",
		timeToMS(endTime), tr.To, sessionID,
	); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "close session", err)
	}

	return tx.Commit()
}

// MarkTooShort declares a closed session too_short without analyzing it.
func (s *Store) MarkTooShort(ctx context.Context, sessionID string) error {
	return s.transitionSession(ctx, sessionID, analysis.EvMarkTooShort, func(tx *sql.Tx, to analysis.State) error {
		_, err := tx.Exec("UPDATE sessions SET analysis_state = ? WHERE id = ?", to, sessionID)
		return err
	})
}

// StartAnalysis transitions closed -> analyzing. Callers must already hold
// the per-session lease (see leases.go); this only validates and applies
// the state transition.
func (s *Store) StartAnalysis(ctx context.Context, sessionID string, forced bool) error {
	ev := analysis.EvStartAnalysis
	if forced {
		ev = analysis.EvForceReanalyze
	}
	return s.transitionSession(ctx, sessionID, ev, func(tx *sql.Tx, to analysis.State) error {
		_, err := tx.Exec("UPDATE sessions SET analysis_state = ?, last_error = '' WHERE id = ?", to, sessionID)
		return err
	})
}

// UpdateSessionAnalysis records the outcome of an analysis run: tags,
// timeline cards, summaries, and the resulting analysis_state.
func (s *Store) UpdateSessionAnalysis(ctx context.Context, sessionID string, outcome SessionAnalysisOutcome) error {
	ev := analysis.EvAnalysisSuccess
	if !outcome.Success {
		ev = analysis.EvAnalysisFailure
	}

	return s.transitionSession(ctx, sessionID, ev, func(tx *sql.Tx, to analysis.State) error {
		tagsJSON, err := json.Marshal(outcome.Tags)
		if err != nil {
			return err
		}
		cardsJSON, err := json.Marshal(outcome.TimelineCards)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE sessions SET
			analysis_state = ?, title = ?, summary = ?, detailed_summary = ?,
			tags_json = ?, timeline_cards_json = ?, last_error = ?
			WHERE id = ?`,
			to, outcome.Title, outcome.Summary, outcome.DetailedSummary,
			string(tagsJSON), string(cardsJSON), outcome.Error, sessionID,
		)
		return err
	})
}

// SessionAnalysisOutcome is the payload written by UpdateSessionAnalysis.
type SessionAnalysisOutcome struct {
	Success         bool
	Title           string
	Summary         string
	DetailedSummary string
	Tags            []ActivityTag
	TimelineCards   []TimelineCard
	Error           string
}

// AddManualTag appends a user-supplied ActivityTag to a session's tag set,
// independent of the analysis_state machine: a manual tag is additive
// metadata, not an outcome of analyze_frames, so it does not go through
// transitionSession.
func (s *Store) AddManualTag(ctx context.Context, sessionID string, tag ActivityTag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "begin add-manual-tag transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tagsJSON string
	if err := tx.QueryRowContext(ctx, "SELECT tags_json FROM sessions WHERE id = ?", sessionID).Scan(&tagsJSON); err != nil {
		return mapNotFound(err, "session")
	}

	var tags []ActivityTag
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return apperr.Wrap(apperr.KindInternal, "unmarshal session tags", err)
		}
	}
	tags = append(tags, tag)

	updated, err := json.Marshal(tags)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal session tags", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET tags_json = ? WHERE id = ?", string(updated), sessionID); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "add manual tag", err)
	}
	return tx.Commit()
}

// SetVideoPath records the synthesized video for a session.
func (s *Store) SetVideoPath(ctx context.Context, sessionID, videoPath string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET video_path = ? WHERE id = ?", videoPath, sessionID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "set video path", err)
	}
	return nil
}

func (s *Store) transitionSession(ctx context.Context, sessionID string, ev analysis.Event, apply func(tx *sql.Tx, to analysis.State) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "begin transition transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current analysis.State
	if err := tx.QueryRowContext(ctx, "SELECT analysis_state FROM sessions WHERE id = ?", sessionID).Scan(&current); err != nil {
		return mapNotFound(err, "session")
	}

	tr, err := analysis.Dispatch(analysis.Record{State: current}, ev)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "session transition rejected", err)
	}

	if err := apply(tx, tr.To); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "apply session transition", err)
	}

	return tx.Commit()
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionSelectCols+"WHERE id = ?", sessionID))
	if err != nil {
		return Session{}, mapNotFound(err, "session")
	}
	return sess, nil
}

// QueryDaySessions returns sessions starting on the given UTC calendar day,
// ordered by start time, optionally filtered by device name.
func (s *Store) QueryDaySessions(ctx context.Context, date time.Time, deviceFilter string) ([]Session, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := sessionSelectCols + "WHERE start_time_ms >= ? AND start_time_ms < ?"
	args := []any{timeToMS(dayStart), timeToMS(dayEnd)}
	if deviceFilter != "" {
		query += " AND device_name = ?"
		args = append(args, deviceFilter)
	}
	query += " ORDER BY start_time_ms ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query day sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan session", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListSessionsByState returns up to limit sessions in the given
// analysis_state, oldest first, backing the Scheduler's periodic discovery
// of closed-but-unanalyzed sessions.
func (s *Store) ListSessionsByState(ctx context.Context, state analysis.State, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		sessionSelectCols+"WHERE analysis_state = ? ORDER BY start_time_ms ASC LIMIT ?",
		state, limit,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query sessions by state", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan session", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// QueryActivities returns a per-day roll-up of sessions in [from, to).
func (s *Store) QueryActivities(ctx context.Context, from, to time.Time) ([]ActivityRollup, error) {
	sessions, err := s.db.QueryContext(ctx, sessionSelectCols+
		"WHERE start_time_ms >= ? AND start_time_ms < ? ORDER BY start_time_ms ASC",
		timeToMS(from), timeToMS(to))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "query activities", err)
	}
	defer sessions.Close()

	byDay := map[string]*ActivityRollup{}
	var order []string
	for sessions.Next() {
		sess, err := scanSessionRows(sessions)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan session", err)
		}
		day := sess.StartTime.Format("2006-01-02")
		r, ok := byDay[day]
		if !ok {
			r = &ActivityRollup{Date: day, TagMix: map[analysis.Category]int{}}
			byDay[day] = r
			order = append(order, day)
		}
		r.SessionCount++
		r.TotalMinutes += sess.EndTime.Sub(sess.StartTime).Minutes()
		for _, tag := range sess.Tags {
			r.TagMix[tag.Category]++
		}
	}
	if err := sessions.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "iterate activities", err)
	}

	out := make([]ActivityRollup, 0, len(order))
	for _, day := range order {
		out = append(out, *byDay[day])
	}
	return out, nil
}

// DeleteSession removes a session and its frames and video row atomically.
// Callers must delete the backing files before calling this (file first,
// row second, per the no-orphan-file invariant); this only mutates the DB.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "begin delete-session transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "session not found")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM frames WHERE session_id = ?", sessionID); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "delete session frames", err)
	}

	return tx.Commit()
}

const sessionSelectCols = `SELECT id, start_time_ms, end_time_ms, device_name, device_type, title, summary,
	detailed_summary, tags_json, timeline_cards_json, video_path, analysis_state, frame_count, last_error
	FROM sessions `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	return scanSessionRows(r)
}

func scanSessionRows(r rowScanner) (Session, error) {
	var sess Session
	var startMS, endMS int64
	var tagsJSON, cardsJSON string

	if err := r.Scan(&sess.ID, &startMS, &endMS, &sess.DeviceName, &sess.DeviceType, &sess.Title,
		&sess.Summary, &sess.DetailedSummary, &tagsJSON, &cardsJSON, &sess.VideoPath,
		&sess.AnalysisState, &sess.FrameCount, &sess.LastError,
	); err != nil {
		return Session{}, err
	}

	sess.StartTime = msToTime(startMS)
	sess.EndTime = msToTime(endMS)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &sess.Tags)
	}
	if cardsJSON != "" {
		_ = json.Unmarshal([]byte(cardsJSON), &sess.TimelineCards)
	}
	return sess, nil
}

func insertSession(ctx context.Context, tx *sql.Tx, sess Session) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, start_time_ms, end_time_ms, device_name, device_type, title, summary,
			detailed_summary, tags_json, timeline_cards_json, video_path, analysis_state, frame_count, last_error)
		VALUES (?, ?, ?, ?, ?, '', '', '', '[]', '[]', '', ?, 0, '')`,
		sess.ID, timeToMS(sess.StartTime), timeToMS(sess.EndTime), sess.DeviceName, sess.DeviceType, sess.AnalysisState,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "insert session", err)
	}
	return nil
}

func mapNotFound(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.KindNotFound, entity+" not found")
	}
	return apperr.Wrap(apperr.KindStorageIO, "query "+entity, err)
}
