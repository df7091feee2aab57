package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deskrecall/deskrecalld/internal/apperr"
)

// InsertFrame appends one FrameRecord. It fails with KindStorageIO wrapping
// a monotonicity violation if timestamp is not strictly greater than the
// previous frame recorded for the same display.
func (s *Store) InsertFrame(ctx context.Context, f FrameRecord) (int64, error) {
	var lastMS int64
	err := s.db.QueryRowContext(ctx,
		"SELECT timestamp_ms FROM frames WHERE display = ? ORDER BY timestamp_ms DESC LIMIT 1", f.Display,
	).Scan(&lastMS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.Wrap(apperr.KindStorageIO, "read last frame timestamp", err)
	}
	if err == nil && timeToMS(f.Timestamp) <= lastMS {
		return 0, apperr.New(apperr.KindStorageIO, "frame timestamp is not strictly greater than the previous frame for this display")
	}

	isBlack := 0
	if f.IsBlack {
		isBlack = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (timestamp_ms, file_path, display, width, height, byte_size, is_black, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`,
		timeToMS(f.Timestamp), f.FilePath, f.Display, f.Width, f.Height, f.ByteSize, isBlack, f.SessionID,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorageIO, "insert frame", err)
	}
	return res.LastInsertId()
}

// BindFramesToSession assigns every frame in [fromID, toID] (inclusive) to
// sessionID and refreshes that session's frame_count.
func (s *Store) BindFramesToSession(ctx context.Context, sessionID string, fromID, toID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "begin bind transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE frames SET session_id = ? WHERE id BETWEEN ? AND ?", sessionID, fromID, toID,
	); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "bind frames", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM frames WHERE session_id = ?", sessionID).Scan(&count); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "count bound frames", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET frame_count = ? WHERE id = ?", count, sessionID); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "update frame count", err)
	}

	return tx.Commit()
}

// ListFramesInSession returns frames for sessionID in capture order. A
// stride > 1 returns every stride-th frame, always including the first and
// last frame of the session (the Orchestrator's uniform sampling policy
// relies on this).
func (s *Store) ListFramesInSession(ctx context.Context, sessionID string, stride int) ([]FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_ms, file_path, display, width, height, byte_size, is_black, COALESCE(session_id, '')
		FROM frames WHERE session_id = ? ORDER BY timestamp_ms ASC`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "list frames", err)
	}
	defer rows.Close()

	var all []FrameRecord
	for rows.Next() {
		var f FrameRecord
		var ms int64
		var isBlack int
		if err := rows.Scan(&f.ID, &ms, &f.FilePath, &f.Display, &f.Width, &f.Height, &f.ByteSize, &isBlack, &f.SessionID); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageIO, "scan frame", err)
		}
		f.Timestamp = msToTime(ms)
		f.IsBlack = isBlack != 0
		all = append(all, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageIO, "iterate frames", err)
	}

	if stride <= 1 || len(all) <= 2 {
		return all, nil
	}

	sampled := make([]FrameRecord, 0, len(all)/stride+2)
	for i := 0; i < len(all); i += stride {
		sampled = append(sampled, all[i])
	}
	if last := all[len(all)-1]; sampled[len(sampled)-1].ID != last.ID {
		sampled = append(sampled, last)
	}
	return sampled, nil
}
