// Package game hosts live hunt sessions. It serializes transitions per
// session, applies them in memory first, then hands snapshots and ledger rows
// to the autosaver and publishes an event for connected clients.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/hunt"
	"github.com/playperu/agenthunt/internal/persist"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnavailable    = errors.New("session storage unavailable")
)

// Publisher fans session events out to subscribers.
type Publisher interface {
	Publish(sessionID string, ev Event)
}

type Event struct {
	Type         string     `json:"type"`
	SessionID    string     `json:"sessionId"`
	Revision     int64      `json:"revision"`
	Phase        hunt.Phase `json:"phase"`
	Checkpoint   int        `json:"checkpoint"`
	TotalScore   int        `json:"totalScore"`
	Correct      bool       `json:"correct,omitempty"`
	NewSessionID string     `json:"newSessionId,omitempty"`
}

const (
	EventState    = "state"
	EventAttempt  = "attempt"
	EventLifeline = "lifeline"
	EventComplete = "complete"
	EventReset    = "reset"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}

type session struct {
	mu sync.Mutex
	m  *hunt.Machine
}

type Service struct {
	cat    *catalogue.Catalogue
	stores persist.Stores
	saver  *persist.Autosaver
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
	share  ShareConfig

	// retired holds ids given up by Reset. They never load again, even
	// while their old snapshot is still waiting to be cleared.
	mu      sync.RWMutex
	live    map[string]*session
	retired map[string]struct{}
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithShareConfig(c ShareConfig) Option {
	return func(s *Service) { s.share = c }
}

func New(cat *catalogue.Catalogue, stores persist.Stores, saver *persist.Autosaver, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cat:     cat,
		stores:  stores,
		saver:   saver,
		pub:     nopPublisher{},
		logger:  logger,
		now:     time.Now,
		share:   defaultShareConfig,
		live:    make(map[string]*session),
		retired: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create starts a new session at the welcome screen.
func (s *Service) Create(_ context.Context) View {
	m := hunt.New(s.cat, uuid.NewString(), hunt.WithClock(s.now))
	sess := &session{m: m}

	s.mu.Lock()
	s.live[m.SessionID()] = sess
	s.mu.Unlock()

	s.saver.Enqueue(m.State())
	s.logger.Info("session created", "session_id", m.SessionID())
	return s.view(m)
}

// lookup returns the live session, loading its snapshot on first use.
func (s *Service) lookup(ctx context.Context, id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.live[id]
	_, gone := s.retired[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if gone {
		return nil, ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if sess, ok := s.live[id]; ok {
		return sess, nil
	}
	if _, gone := s.retired[id]; gone {
		return nil, ErrUnknownSession
	}

	st, err := s.stores.Snapshots.Load(ctx, id)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		s.logger.Error("loading snapshot", "session_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m, err := hunt.Restore(s.cat, st, hunt.WithClock(s.now))
	if err != nil {
		s.logger.Warn("discarding corrupt snapshot", "session_id", id, "error", err)
		return nil, ErrUnknownSession
	}
	sess = &session{m: m}
	s.live[id] = sess
	return sess, nil
}

// acquire looks up the session and locks it. A Reset that ran between the
// lookup and the lock has moved the session to a new id, so the old id is
// reported unknown rather than acting on the new game.
func (s *Service) acquire(ctx context.Context, id string) (*session, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.m.SessionID() != id {
		sess.mu.Unlock()
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// apply runs fn with the session locked. When fn commits a transition the
// new snapshot is queued for saving and an event is published.
func (s *Service) apply(ctx context.Context, id, event string, fn func(m *hunt.Machine) error) (View, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	before := sess.m.State().Revision
	if err := fn(sess.m); err != nil {
		return View{}, err
	}
	if st := sess.m.State(); st.Revision != before {
		s.commit(st, event)
	}
	return s.view(sess.m), nil
}

func (s *Service) commit(st hunt.GameState, event string) {
	s.saver.Enqueue(st)
	if st.IsGameComplete && event == EventAttempt {
		event = EventComplete
	}
	s.pub.Publish(st.SessionID, Event{
		Type:       event,
		SessionID:  st.SessionID,
		Revision:   st.Revision,
		Phase:      st.Phase,
		Checkpoint: st.CurrentCheckpoint,
		TotalScore: st.TotalScore,
	})
}

// Get returns the current view of a session.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	return s.apply(ctx, id, EventState, func(*hunt.Machine) error { return nil })
}

func (s *Service) Begin(ctx context.Context, id string) (View, error) {
	return s.apply(ctx, id, EventState, (*hunt.Machine).Begin)
}

// StartClues starts the game clock and opens the first checkpoint.
func (s *Service) StartClues(ctx context.Context, id string) (View, error) {
	return s.apply(ctx, id, EventState, (*hunt.Machine).StartClues)
}

func (s *Service) Acknowledge(ctx context.Context, id string) (View, error) {
	return s.apply(ctx, id, EventState, (*hunt.Machine).Acknowledge)
}

type AttemptResult struct {
	hunt.Attempt
	View View `json:"session"`
}

// SubmitCode checks a code for the current checkpoint. A missing requestID
// is replaced with a fresh one, which makes the attempt non-replayable.
func (s *Service) SubmitCode(ctx context.Context, id, requestID, code string) (AttemptResult, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	var res hunt.Attempt
	v, err := s.apply(ctx, id, EventAttempt, func(m *hunt.Machine) error {
		before := m.State()
		var err error
		res, err = m.SubmitCode(requestID, code)
		if err != nil || res.Replayed {
			return err
		}
		s.recordLedger(before, requestID, code, res)
		return nil
	})
	if err != nil {
		return AttemptResult{}, err
	}
	return AttemptResult{Attempt: res, View: v}, nil
}

func (s *Service) recordLedger(before hunt.GameState, requestID, code string, res hunt.Attempt) {
	sid := before.SessionID
	ledger := s.stores.Ledger

	if !res.Correct {
		a := persist.InvalidAttempt{
			RequestID:  requestID,
			Checkpoint: res.Checkpoint,
			Code:       catalogue.Normalize(code),
			Penalty:    res.Penalty,
			At:         s.now().UTC(),
		}
		s.saver.Go(sid, "invalid_attempt", func(ctx context.Context) error {
			return ledger.RecordInvalidAttempt(ctx, sid, a)
		})
		return
	}

	b := res.Score
	end := s.now().UTC()
	start := end.Add(-b.Duration)
	if before.CheckpointStartTime != nil {
		start = *before.CheckpointStartTime
	}
	rec := persist.CheckpointRecord{
		Checkpoint:            res.Checkpoint,
		StartTime:             start,
		EndTime:               end,
		DurationSeconds:       b.DurationSeconds,
		TimeScore:             b.TimeScore,
		LifelinesUsed:         before.CheckpointLifelines,
		LifelinePenalty:       b.LifelinePenalty,
		InvalidAttempts:       before.CheckpointInvalids,
		InvalidAttemptPenalty: b.InvalidAttemptPenalty,
		NetScore:              b.NetScore,
	}
	s.saver.Go(sid, "checkpoint_timing", func(ctx context.Context) error {
		return ledger.RecordCheckpoint(ctx, sid, rec)
	})
}

type LifelineResult struct {
	hunt.LifelineGrant
	View View `json:"session"`
}

func (s *Service) RequestLifeline(ctx context.Context, id, requestID string) (LifelineResult, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	var g hunt.LifelineGrant
	v, err := s.apply(ctx, id, EventLifeline, func(m *hunt.Machine) error {
		var err error
		g, err = m.RequestLifeline(requestID)
		return err
	})
	if err != nil {
		return LifelineResult{}, err
	}
	return LifelineResult{LifelineGrant: g, View: v}, nil
}

func (s *Service) CurrentScore(ctx context.Context, id string) (hunt.Score, error) {
	var sc hunt.Score
	_, err := s.apply(ctx, id, EventState, func(m *hunt.Machine) error {
		sc = m.CurrentScore()
		return nil
	})
	return sc, err
}

// FinalScore applies the completion bonuses. Before completion it reports
// the score so far with Completed unset.
func (s *Service) FinalScore(ctx context.Context, id string) (FinalResult, error) {
	var out FinalResult
	_, err := s.apply(ctx, id, EventState, func(m *hunt.Machine) error {
		game, _ := m.Elapsed()
		out = FinalResult{FinalScore: m.FinalScore(), ElapsedSeconds: int(game.Seconds())}
		return nil
	})
	return out, err
}

// Reset discards the session's progress and continues under a new id. The
// old id is retired at once; its snapshot and ledger rows are deleted in the
// background.
func (s *Service) Reset(ctx context.Context, id string) (View, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	newID := uuid.NewString()
	sess.m.Reset(newID)

	s.mu.Lock()
	delete(s.live, id)
	s.retired[id] = struct{}{}
	s.live[newID] = sess
	s.mu.Unlock()

	snaps, ledger := s.stores.Snapshots, s.stores.Ledger
	s.saver.Retire(id,
		func(ctx context.Context) error { return snaps.Clear(ctx, id) },
		func(ctx context.Context) error { return ledger.ClearLedger(ctx, id) },
	)
	s.saver.Enqueue(sess.m.State())

	s.pub.Publish(id, Event{Type: EventReset, SessionID: id, Phase: hunt.PhaseWelcome, NewSessionID: newID})
	s.logger.Info("session reset", "session_id", id, "new_session_id", newID)
	return s.view(sess.m), nil
}

// Checkpoints returns the ledger rows of a known session.
func (s *Service) Checkpoints(ctx context.Context, id string) ([]persist.CheckpointRecord, error) {
	if _, err := s.lookup(ctx, id); err != nil {
		return nil, err
	}
	recs, err := s.stores.Ledger.Checkpoints(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return recs, nil
}

// DismissNotification removes a toast and reports whether it existed.
func (s *Service) DismissNotification(ctx context.Context, id string, notificationID int64) (bool, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer sess.mu.Unlock()
	return sess.m.Notifications().Dismiss(notificationID), nil
}

// List merges stored sessions with live ones for mission control. Live
// sessions win since their snapshot may not have been written yet.
func (s *Service) List(ctx context.Context) ([]persist.Summary, error) {
	s.mu.RLock()
	live := make([]*session, 0, len(s.live))
	for _, sess := range s.live {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	out := make([]persist.Summary, 0, len(live))
	seen := make(map[string]bool, len(live))
	for _, sess := range live {
		sess.mu.Lock()
		st := sess.m.State()
		sess.mu.Unlock()
		seen[st.SessionID] = true
		out = append(out, persist.Summary{
			SessionID:          st.SessionID,
			CurrentCheckpoint:  st.CurrentCheckpoint,
			LifelinesRemaining: st.LifelinesRemaining,
			TotalScore:         st.TotalScore,
			Completed:          st.IsGameComplete,
			Live:               true,
		})
	}

	if s.stores.Sessions == nil {
		return out, nil
	}
	stored, err := s.stores.Sessions.List(ctx, listLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.mu.RLock()
	for _, sm := range stored {
		if _, gone := s.retired[sm.SessionID]; !gone && !seen[sm.SessionID] {
			out = append(out, sm)
		}
	}
	s.mu.RUnlock()
	return out, nil
}

const listLimit = 200
