package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/agenthunt/internal/hunt"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore keeps snapshots as JSONB documents in game_progress, with the
// fields mission control filters on copied into plain columns. It also
// implements ShareStore and Ledger on the same database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Save(ctx context.Context, st hunt.GameState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game_progress
			(session_id, revision, current_checkpoint, lifelines_remaining, total_score, game_completed, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, jsonb(?), ?)
		ON CONFLICT (session_id) DO UPDATE SET
			revision            = excluded.revision,
			current_checkpoint  = excluded.current_checkpoint,
			lifelines_remaining = excluded.lifelines_remaining,
			total_score         = excluded.total_score,
			game_completed      = excluded.game_completed,
			data                = excluded.data,
			updated_at          = excluded.updated_at
		WHERE excluded.revision >= game_progress.revision
	`, st.SessionID, st.Revision, st.CurrentCheckpoint, st.LifelinesRemaining, st.TotalScore,
		boolInt(st.IsGameComplete), string(data), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", st.SessionID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (hunt.GameState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM game_progress WHERE session_id = ?`, sessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return hunt.GameState{}, ErrNotFound
	}
	if err != nil {
		return hunt.GameState{}, fmt.Errorf("loading snapshot %s: %w", sessionID, err)
	}

	var st hunt.GameState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return hunt.GameState{}, fmt.Errorf("decoding snapshot %s: %w", sessionID, err)
	}
	return st, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM game_progress WHERE session_id = ?`, sessionID)
	return err
}

// List returns stored sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, current_checkpoint, lifelines_remaining, total_score, game_completed, updated_at
		FROM game_progress
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.SessionID, &sm.CurrentCheckpoint, &sm.LifelinesRemaining,
			&sm.TotalScore, &sm.Completed, &sm.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, token, sessionID string, ttl time.Duration) error {
	expires := time.Now().Add(ttl).UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_sessions (token, session_id, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET session_id = excluded.session_id, expires_at = excluded.expires_at
	`, token, sessionID, expires)
	return err
}

func (s *SQLiteStore) Resolve(ctx context.Context, token string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM shared_sessions WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC().Format(timeLayout),
	).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return sessionID, err
}

// PurgeExpiredShares deletes share tokens past their expiry.
func (s *SQLiteStore) PurgeExpiredShares(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shared_sessions WHERE expires_at <= ?`, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordCheckpoint(ctx context.Context, sessionID string, r CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoint_timing (
			session_id, checkpoint_number, start_time, end_time, duration_seconds, time_score,
			lifelines_used_count, lifeline_penalty, invalid_attempts_count, invalid_attempt_penalty, net_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, checkpoint_number) DO UPDATE SET
			start_time              = excluded.start_time,
			end_time                = excluded.end_time,
			duration_seconds        = excluded.duration_seconds,
			time_score              = excluded.time_score,
			lifelines_used_count    = excluded.lifelines_used_count,
			lifeline_penalty        = excluded.lifeline_penalty,
			invalid_attempts_count  = excluded.invalid_attempts_count,
			invalid_attempt_penalty = excluded.invalid_attempt_penalty,
			net_score               = excluded.net_score
	`, sessionID, r.Checkpoint, r.StartTime.UTC().Format(timeLayout), r.EndTime.UTC().Format(timeLayout),
		r.DurationSeconds, r.TimeScore, r.LifelinesUsed, r.LifelinePenalty,
		r.InvalidAttempts, r.InvalidAttemptPenalty, r.NetScore)
	if err != nil {
		return fmt.Errorf("recording checkpoint %d for %s: %w", r.Checkpoint, sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) RecordInvalidAttempt(ctx context.Context, sessionID string, a InvalidAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invalid_attempts
			(session_id, request_id, checkpoint_number, attempted_code, penalty_applied, attempt_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, request_id) DO NOTHING
	`, sessionID, a.RequestID, a.Checkpoint, a.Code, a.Penalty, a.At.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("recording invalid attempt for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Checkpoints(ctx context.Context, sessionID string) ([]CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_number, start_time, end_time, duration_seconds, time_score,
		       lifelines_used_count, lifeline_penalty, invalid_attempts_count, invalid_attempt_penalty, net_score
		FROM checkpoint_timing
		WHERE session_id = ?
		ORDER BY checkpoint_number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CheckpointRecord{}
	for rows.Next() {
		var r CheckpointRecord
		var start, end string
		if err := rows.Scan(&r.Checkpoint, &start, &end, &r.DurationSeconds, &r.TimeScore,
			&r.LifelinesUsed, &r.LifelinePenalty, &r.InvalidAttempts, &r.InvalidAttemptPenalty, &r.NetScore); err != nil {
			return nil, err
		}
		r.StartTime, _ = time.Parse(timeLayout, start)
		r.EndTime, _ = time.Parse(timeLayout, end)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InvalidAttempts(ctx context.Context, sessionID string) ([]InvalidAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, checkpoint_number, attempted_code, penalty_applied, attempt_time
		FROM invalid_attempts
		WHERE session_id = ?
		ORDER BY attempt_time
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []InvalidAttempt{}
	for rows.Next() {
		var a InvalidAttempt
		var at string
		if err := rows.Scan(&a.RequestID, &a.Checkpoint, &a.Code, &a.Penalty, &at); err != nil {
			return nil, err
		}
		a.At, _ = time.Parse(timeLayout, at)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearLedger(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM checkpoint_timing WHERE session_id = ?`,
		`DELETE FROM invalid_attempts WHERE session_id = ?`,
		`DELETE FROM shared_sessions WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
			return fmt.Errorf("clearing ledger for %s: %w", sessionID, err)
		}
	}
	return tx.Commit()
}
