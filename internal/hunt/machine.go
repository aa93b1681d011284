package hunt

import (
	"errors"
	"fmt"
	"time"

	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/scoring"
)

var (
	ErrWrongPhase   = errors.New("action not allowed in current phase")
	ErrGameComplete = errors.New("game already complete")
	ErrEmptyCode    = errors.New("code is required")
)

const (
	requestAttempt  = "attempt"
	requestLifeline = "lifeline"
)

// Machine applies player intents to a GameState. It is not safe for
// concurrent use; callers serialize access per session.
//
// Every transition validates before it mutates, so a rejected call leaves
// the state untouched.
type Machine struct {
	cat    *catalogue.Catalogue
	state  GameState
	now    func() time.Time
	toasts *Notifications
}

type Option func(*Machine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New starts a fresh session in the welcome phase.
func New(cat *catalogue.Catalogue, sessionID string, opts ...Option) *Machine {
	m := &Machine{
		cat:    cat,
		state:  initialState(sessionID, cat.Len()),
		now:    time.Now,
		toasts: NewNotifications(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Restore resumes a saved snapshot. Snapshots that violate invariants or
// belong to a catalogue of a different length are rejected.
func Restore(cat *catalogue.Catalogue, s GameState, opts ...Option) (*Machine, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	if s.TotalCheckpoints != cat.Len() {
		return nil, fmt.Errorf("invalid snapshot: %d checkpoints, catalogue has %d", s.TotalCheckpoints, cat.Len())
	}
	m := New(cat, s.SessionID, opts...)
	m.state = s.Clone()
	return m, nil
}

// State returns a copy of the current snapshot.
func (m *Machine) State() GameState { return m.state.Clone() }

func (m *Machine) SessionID() string { return m.state.SessionID }

func (m *Machine) Notifications() *Notifications { return m.toasts }

func (m *Machine) stamp() *time.Time {
	t := m.now().UTC()
	return &t
}

func (m *Machine) commit() { m.state.Revision++ }

func (m *Machine) guard(want Phase) error {
	if m.state.Phase == PhaseFinal {
		return ErrGameComplete
	}
	if m.state.Phase != want {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongPhase, m.state.Phase, want)
	}
	return nil
}

// Begin moves from the welcome screen to the mission briefing.
func (m *Machine) Begin() error {
	if err := m.guard(PhaseWelcome); err != nil {
		return err
	}
	m.state.Phase = PhaseBriefing
	m.commit()
	return nil
}

// StartClues starts the game clock and opens the first checkpoint.
func (m *Machine) StartClues() error {
	if err := m.guard(PhaseBriefing); err != nil {
		return err
	}
	m.state.GameStartTime = m.stamp()
	m.enter(0)
	m.commit()
	return nil
}

// Acknowledge passes a narrative gate and reveals the gated clue.
func (m *Machine) Acknowledge() error {
	if err := m.guard(PhaseInterstitial); err != nil {
		return err
	}
	m.state.Phase = PhaseClue
	m.state.Gate = catalogue.GateNone
	m.state.CheckpointStartTime = m.stamp()
	m.commit()
	return nil
}

// enter opens checkpoint i, stopping at its gate when it has one.
func (m *Machine) enter(i int) {
	s := &m.state
	s.CurrentCheckpoint = i
	s.CheckpointLifelines = 0
	s.CheckpointInvalids = 0
	s.HintRevealed = false

	if gate := m.cat.GateBefore(i); gate != catalogue.GateNone {
		s.Phase = PhaseInterstitial
		s.Gate = gate
		s.CheckpointStartTime = nil
		return
	}
	s.Phase = PhaseClue
	s.Gate = catalogue.GateNone
	s.CheckpointStartTime = m.stamp()
}

// Attempt is the outcome of a submitted code.
type Attempt struct {
	Checkpoint   int                `json:"checkpoint"`
	Correct      bool               `json:"correct"`
	Penalty      int                `json:"penalty"`
	Score        *scoring.Breakdown `json:"score,omitempty"`
	GameComplete bool               `json:"gameComplete"`
	Replayed     bool               `json:"replayed,omitempty"`
}

// SubmitCode checks raw against the current checkpoint's password. A wrong
// code costs 2 points at once; a right one scores the checkpoint and
// advances. A repeated requestID returns the first outcome unchanged.
func (m *Machine) SubmitCode(requestID, raw string) (Attempt, error) {
	if r, ok := m.state.recall(requestID, requestAttempt); ok {
		return m.replayAttempt(r), nil
	}
	if err := m.guard(PhaseClue); err != nil {
		return Attempt{}, err
	}
	code := catalogue.Normalize(raw)
	if code == "" {
		return Attempt{}, ErrEmptyCode
	}

	s := &m.state
	cur := s.CurrentCheckpoint

	if !m.cat.Matches(cur, code) {
		s.CheckpointInvalids++
		s.TotalInvalidAttempts++
		s.TotalScore -= scoring.InvalidAttemptPenalty
		s.remember(RequestRecord{ID: requestID, Kind: requestAttempt, Checkpoint: cur, Penalty: -scoring.InvalidAttemptPenalty})
		m.commit()
		m.toasts.Push(KindError, fmt.Sprintf("ACCESS DENIED - INVALID CODE (-%d)", scoring.InvalidAttemptPenalty), m.now())
		return Attempt{Checkpoint: cur, Penalty: -scoring.InvalidAttemptPenalty}, nil
	}

	var elapsed time.Duration
	if s.CheckpointStartTime != nil {
		elapsed = m.now().Sub(*s.CheckpointStartTime)
	}
	b := scoring.Checkpoint(elapsed, s.CheckpointLifelines, s.CheckpointInvalids)

	s.EnteredCodes = append(s.EnteredCodes, code)
	s.CheckpointTimes = append(s.CheckpointTimes, b.Duration.Seconds())
	s.CheckpointScores = append(s.CheckpointScores, b.NetScore)
	s.Results = append(s.Results, b)
	// Penalties were charged provisionally as they happened; the net score
	// already includes them, so give them back before adding it.
	s.TotalScore += b.LifelinePenalty + b.InvalidAttemptPenalty + b.NetScore
	s.remember(RequestRecord{ID: requestID, Kind: requestAttempt, Checkpoint: cur, Correct: true})

	res := Attempt{Checkpoint: cur, Correct: true, Score: &b}
	if cur == s.TotalCheckpoints-1 {
		m.complete()
		res.GameComplete = true
		m.toasts.Push(KindSuccess, "MISSION ACCOMPLISHED", m.now())
	} else {
		m.enter(cur + 1)
		m.toasts.Push(KindSuccess, fmt.Sprintf("CODE ACCEPTED (+%d)", b.NetScore), m.now())
	}
	m.commit()
	return res, nil
}

func (m *Machine) replayAttempt(r RequestRecord) Attempt {
	a := Attempt{Checkpoint: r.Checkpoint, Correct: r.Correct, Penalty: r.Penalty, Replayed: true}
	if r.Correct && r.Checkpoint < len(m.state.Results) {
		b := m.state.Results[r.Checkpoint]
		a.Score = &b
		a.GameComplete = m.state.IsGameComplete && r.Checkpoint == m.state.TotalCheckpoints-1
	}
	return a
}

func (m *Machine) complete() {
	s := &m.state
	s.Phase = PhaseFinal
	s.Gate = catalogue.GateNone
	s.CurrentCheckpoint = s.TotalCheckpoints
	s.IsGameComplete = true
	s.CompletedAt = m.stamp()
	s.CheckpointStartTime = nil
	s.CheckpointLifelines = 0
	s.CheckpointInvalids = 0
	s.HintRevealed = false
}

// LifelineGrant is the outcome of a lifeline request.
type LifelineGrant struct {
	Granted    bool                    `json:"granted"`
	Checkpoint int                     `json:"checkpoint"`
	Hint       *catalogue.LifelineHint `json:"hint,omitempty"`
	Penalty    int                     `json:"penalty"`
	Remaining  int                     `json:"lifelinesRemaining"`
	Locked     bool                    `json:"locked,omitempty"`
	Replayed   bool                    `json:"replayed,omitempty"`
}

// RequestLifeline reveals the current checkpoint's hint for 3 points. Asking
// again on the same checkpoint shows the same hint for free. With no
// lifelines left, or on a checkpoint whose lifeline is locked, the request
// is refused without error and without cost.
func (m *Machine) RequestLifeline(requestID string) (LifelineGrant, error) {
	if r, ok := m.state.recall(requestID, requestLifeline); ok {
		g := LifelineGrant{Granted: r.Granted, Checkpoint: r.Checkpoint, Penalty: r.Penalty, Remaining: m.state.LifelinesRemaining, Replayed: true}
		if r.Granted {
			h := m.cat.Lifeline(r.Checkpoint)
			g.Hint = &h
		}
		return g, nil
	}
	if err := m.guard(PhaseClue); err != nil {
		return LifelineGrant{}, err
	}

	s := &m.state
	cur := s.CurrentCheckpoint
	hint := m.cat.Lifeline(cur)

	if m.cat.LifelineLocked(cur) {
		return LifelineGrant{Checkpoint: cur, Remaining: s.LifelinesRemaining, Locked: true}, nil
	}
	if s.HintRevealed {
		return LifelineGrant{Granted: true, Checkpoint: cur, Hint: &hint, Remaining: s.LifelinesRemaining}, nil
	}
	if s.LifelinesRemaining <= 0 {
		m.toasts.Push(KindInfo, "NO LIFELINES REMAINING", m.now())
		return LifelineGrant{Checkpoint: cur, Remaining: 0}, nil
	}

	s.LifelinesRemaining--
	s.TotalLifelinesUsed++
	s.CheckpointLifelines++
	s.TotalScore -= scoring.LifelinePenalty
	s.HintRevealed = true
	s.remember(RequestRecord{ID: requestID, Kind: requestLifeline, Checkpoint: cur, Granted: true, Penalty: -scoring.LifelinePenalty})
	m.commit()
	m.toasts.Push(KindLifeline, fmt.Sprintf("LIFELINE USED (-%d)", scoring.LifelinePenalty), m.now())

	return LifelineGrant{
		Granted:    true,
		Checkpoint: cur,
		Hint:       &hint,
		Penalty:    -scoring.LifelinePenalty,
		Remaining:  s.LifelinesRemaining,
	}, nil
}

// Reset discards all progress and starts over under a new session id.
func (m *Machine) Reset(newSessionID string) {
	m.state = initialState(newSessionID, m.cat.Len())
	m.toasts = NewNotifications()
}

// Clue returns the clue for the checkpoint in play, or the catalogue's
// sentinel when no clue is showing.
func (m *Machine) Clue() string {
	if m.state.Phase != PhaseClue {
		return catalogue.NoClue
	}
	return m.cat.Clue(m.state.CurrentCheckpoint)
}

// RevealedHint returns the hint already paid for on this checkpoint.
func (m *Machine) RevealedHint() (catalogue.LifelineHint, bool) {
	if m.state.Phase != PhaseClue || !m.state.HintRevealed {
		return catalogue.LifelineHint{}, false
	}
	return m.cat.Lifeline(m.state.CurrentCheckpoint), true
}

// Score is the running score during play.
type Score struct {
	CurrentScore   int `json:"currentScore"`
	CompletedScore int `json:"completedScore"`
	Checkpoints    int `json:"checkpointsCompleted"`
}

func (m *Machine) CurrentScore() Score {
	return Score{
		CurrentScore:   m.state.TotalScore,
		CompletedScore: m.state.SumOfNetScores(),
		Checkpoints:    len(m.state.CheckpointScores),
	}
}

func (m *Machine) FinalScore() scoring.FinalScore {
	s := m.state
	return scoring.Final(s.SumOfNetScores(), s.TotalLifelinesUsed, s.TotalInvalidAttempts, s.IsGameComplete)
}

// Elapsed reports time on the whole game and on the checkpoint in play.
// The game clock stops at completion.
func (m *Machine) Elapsed() (game, checkpoint time.Duration) {
	now := m.now()
	s := m.state
	if s.GameStartTime != nil {
		end := now
		if s.CompletedAt != nil {
			end = *s.CompletedAt
		}
		game = max(end.Sub(*s.GameStartTime), 0)
	}
	if s.CheckpointStartTime != nil {
		checkpoint = max(now.Sub(*s.CheckpointStartTime), 0)
	}
	return game, checkpoint
}
