// Package persist saves game snapshots and the per-checkpoint ledger. The
// snapshot store has three engines (libSQL, redis, a local JSON file) that
// share one contract: saves are last-write-wins ordered by revision, so a
// save that arrives late never overwrites newer progress.
package persist

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/playperu/agenthunt/internal/hunt"
)

var ErrNotFound = errors.New("not found")

type SnapshotStore interface {
	Save(ctx context.Context, s hunt.GameState) error
	// Load returns ErrNotFound when the session has never been saved.
	Load(ctx context.Context, sessionID string) (hunt.GameState, error)
	Clear(ctx context.Context, sessionID string) error
}

// ShareStore maps opaque share tokens to session ids for a limited time.
type ShareStore interface {
	Put(ctx context.Context, token, sessionID string, ttl time.Duration) error
	Resolve(ctx context.Context, token string) (string, error)
}

// Summary is the mission-control view of a stored session.
type Summary struct {
	SessionID          string `json:"sessionId"`
	CurrentCheckpoint  int    `json:"currentCheckpoint"`
	LifelinesRemaining int    `json:"lifelinesRemaining"`
	TotalScore         int    `json:"totalScore"`
	Completed          bool   `json:"gameCompleted"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
	Live               bool   `json:"live"`
}

// Lister lists stored sessions, most recently updated first. Every snapshot
// engine implements it.
type Lister interface {
	List(ctx context.Context, limit int) ([]Summary, error)
}

func summarize(st hunt.GameState, updated time.Time) Summary {
	sm := Summary{
		SessionID:          st.SessionID,
		CurrentCheckpoint:  st.CurrentCheckpoint,
		LifelinesRemaining: st.LifelinesRemaining,
		TotalScore:         st.TotalScore,
		Completed:          st.IsGameComplete,
	}
	if !updated.IsZero() {
		sm.UpdatedAt = updated.UTC().Format(timeLayout)
	}
	return sm
}

// newestFirst orders summaries by UpdatedAt descending and keeps at most
// limit of them. UpdatedAt uses timeLayout, which sorts lexically.
func newestFirst(list []Summary, limit int) []Summary {
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt > list[j].UpdatedAt })
	if limit >= 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// CheckpointRecord is one solved checkpoint as recorded in the ledger.
type CheckpointRecord struct {
	Checkpoint            int       `json:"checkpointNumber"`
	StartTime             time.Time `json:"startTime"`
	EndTime               time.Time `json:"endTime"`
	DurationSeconds       int       `json:"durationSeconds"`
	TimeScore             int       `json:"timeScore"`
	LifelinesUsed         int       `json:"lifelinesUsedCount"`
	LifelinePenalty       int       `json:"lifelinePenalty"`
	InvalidAttempts       int       `json:"invalidAttemptsCount"`
	InvalidAttemptPenalty int       `json:"invalidAttemptPenalty"`
	NetScore              int       `json:"netScore"`
}

type InvalidAttempt struct {
	RequestID  string    `json:"requestId"`
	Checkpoint int       `json:"checkpointNumber"`
	Code       string    `json:"attemptedCode"`
	Penalty    int       `json:"penaltyApplied"`
	At         time.Time `json:"attemptTime"`
}

// Ledger keeps the per-checkpoint history of a session alongside its
// snapshot.
type Ledger interface {
	RecordCheckpoint(ctx context.Context, sessionID string, r CheckpointRecord) error
	RecordInvalidAttempt(ctx context.Context, sessionID string, a InvalidAttempt) error
	Checkpoints(ctx context.Context, sessionID string) ([]CheckpointRecord, error)
	InvalidAttempts(ctx context.Context, sessionID string) ([]InvalidAttempt, error)
	ClearLedger(ctx context.Context, sessionID string) error
}
