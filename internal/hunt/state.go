// Package hunt defines one player's progress through a hunt and the state
// machine that advances it. It depends only on the catalogue and scoring
// packages and performs no I/O.
package hunt

import (
	"fmt"
	"slices"
	"time"

	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/scoring"
)

// MaxLifelines is the number of hints a player gets per hunt.
const MaxLifelines = 3

type Phase string

const (
	PhaseWelcome      Phase = "welcome"
	PhaseBriefing     Phase = "briefing"
	PhaseClue         Phase = "clue"
	PhaseInterstitial Phase = "interstitial"
	PhaseFinal        Phase = "final"
)

// GameState is the persisted snapshot of a session. Revision increases on
// every committed transition and orders concurrent saves.
type GameState struct {
	SessionID string `json:"sessionId"`
	Revision  int64  `json:"revision"`

	Phase Phase          `json:"phase"`
	Gate  catalogue.Gate `json:"gate"`

	CurrentCheckpoint  int      `json:"currentCheckpoint"`
	TotalCheckpoints   int      `json:"totalCheckpoints"`
	LifelinesRemaining int      `json:"lifelinesRemaining"`
	EnteredCodes       []string `json:"enteredCodes"`

	CheckpointStartTime *time.Time `json:"checkpointStartTime"`
	GameStartTime       *time.Time `json:"gameStartTime"`
	CompletedAt         *time.Time `json:"completedAt"`

	// CheckpointTimes holds elapsed seconds per solved checkpoint and runs
	// parallel to CheckpointScores and Results.
	CheckpointTimes  []float64           `json:"checkpointTimes"`
	CheckpointScores []int               `json:"checkpointScores"`
	Results          []scoring.Breakdown `json:"results"`

	TotalScore           int  `json:"totalScore"`
	TotalLifelinesUsed   int  `json:"totalLifelinesUsed"`
	TotalInvalidAttempts int  `json:"totalInvalidAttempts"`
	IsGameComplete       bool `json:"isGameComplete"`

	// Counters for the checkpoint in play.
	CheckpointLifelines int  `json:"checkpointLifelines"`
	CheckpointInvalids  int  `json:"checkpointInvalids"`
	HintRevealed        bool `json:"hintRevealed"`

	Requests []RequestRecord `json:"requests"`
}

// RequestRecord remembers the outcome of a client request id so a retried
// submit or lifeline request replays instead of applying twice.
type RequestRecord struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Checkpoint int    `json:"checkpoint"`
	Correct    bool   `json:"correct"`
	Granted    bool   `json:"granted"`
	Penalty    int    `json:"penalty"`
}

const maxRequestRecords = 64

func initialState(sessionID string, total int) GameState {
	return GameState{
		SessionID:          sessionID,
		Phase:              PhaseWelcome,
		TotalCheckpoints:   total,
		LifelinesRemaining: MaxLifelines,
		EnteredCodes:       []string{},
		CheckpointTimes:    []float64{},
		CheckpointScores:   []int{},
		Results:            []scoring.Breakdown{},
		Requests:           []RequestRecord{},
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s GameState) Clone() GameState {
	c := s
	c.EnteredCodes = slices.Clone(s.EnteredCodes)
	c.CheckpointTimes = slices.Clone(s.CheckpointTimes)
	c.CheckpointScores = slices.Clone(s.CheckpointScores)
	c.Results = slices.Clone(s.Results)
	c.Requests = slices.Clone(s.Requests)
	c.CheckpointStartTime = cloneTime(s.CheckpointStartTime)
	c.GameStartTime = cloneTime(s.GameStartTime)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SumOfNetScores is the total of solved checkpoint scores, without the
// provisional penalties of the checkpoint in play.
func (s GameState) SumOfNetScores() int {
	sum := 0
	for _, v := range s.CheckpointScores {
		sum += v
	}
	return sum
}

// Validate checks the snapshot invariants. A loaded snapshot that fails
// validation is treated as corrupt rather than resumed.
func (s GameState) Validate() error {
	switch {
	case s.SessionID == "":
		return fmt.Errorf("missing session id")
	case s.TotalCheckpoints <= 0:
		return fmt.Errorf("total checkpoints %d", s.TotalCheckpoints)
	case s.CurrentCheckpoint < 0 || s.CurrentCheckpoint > s.TotalCheckpoints:
		return fmt.Errorf("current checkpoint %d outside 0..%d", s.CurrentCheckpoint, s.TotalCheckpoints)
	case s.LifelinesRemaining != MaxLifelines-s.TotalLifelinesUsed || s.LifelinesRemaining < 0:
		return fmt.Errorf("lifelines remaining %d with %d used", s.LifelinesRemaining, s.TotalLifelinesUsed)
	case len(s.CheckpointScores) != len(s.CheckpointTimes) || len(s.CheckpointScores) != len(s.Results):
		return fmt.Errorf("score and time lists differ in length")
	case len(s.CheckpointScores) != s.CurrentCheckpoint:
		return fmt.Errorf("%d scores recorded at checkpoint %d", len(s.CheckpointScores), s.CurrentCheckpoint)
	case s.IsGameComplete != (s.Phase == PhaseFinal):
		return fmt.Errorf("phase %q with complete=%v", s.Phase, s.IsGameComplete)
	}
	switch s.Phase {
	case PhaseWelcome, PhaseBriefing, PhaseClue, PhaseInterstitial, PhaseFinal:
	default:
		return fmt.Errorf("unknown phase %q", s.Phase)
	}
	return nil
}

func (s *GameState) remember(r RequestRecord) {
	if r.ID == "" {
		return
	}
	s.Requests = append(s.Requests, r)
	if n := len(s.Requests); n > maxRequestRecords {
		s.Requests = slices.Clone(s.Requests[n-maxRequestRecords:])
	}
}

func (s *GameState) recall(id, kind string) (RequestRecord, bool) {
	if id == "" {
		return RequestRecord{}, false
	}
	for _, r := range s.Requests {
		if r.ID == id && r.Kind == kind {
			return r, true
		}
	}
	return RequestRecord{}, false
}
