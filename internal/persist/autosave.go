package persist

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playperu/agenthunt/internal/hunt"
)

const (
	queueSize        = 64
	teardownTimeout  = 5 * time.Second
	maxWriteAttempts = 5
)

type job struct {
	state *hunt.GameState

	sessionID string
	name      string
	write     func(ctx context.Context) error

	// cleanup jobs run for retired sessions; other writes are skipped.
	cleanup  bool
	attempts int
}

// Autosaver writes snapshots and ledger rows off the request path. Enqueue
// and Go never block: when the queue is full the work is parked and the
// periodic flush picks it up. Failed snapshot saves are retried until they
// succeed; failed writes are retried up to maxWriteAttempts times.
//
// All writes run on the Run goroutine, so a session's cleanup always lands
// after any save queued before Retire.
type Autosaver struct {
	store    SnapshotStore
	logger   *slog.Logger
	interval time.Duration

	queue chan job

	mu      sync.Mutex
	dirty   map[string]hunt.GameState
	backlog []job
	retired map[string]struct{}

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewAutosaver(store SnapshotStore, logger *slog.Logger, interval time.Duration) *Autosaver {
	return &Autosaver{
		store:    store,
		logger:   logger,
		interval: interval,
		queue:    make(chan job, queueSize),
		dirty:    make(map[string]hunt.GameState),
		retired:  make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue schedules a snapshot save.
func (a *Autosaver) Enqueue(st hunt.GameState) {
	st = st.Clone()
	select {
	case a.queue <- job{state: &st}:
	default:
		a.markDirty(st)
	}
}

// Go schedules a one-off write for a session, such as a ledger row.
func (a *Autosaver) Go(sessionID, name string, write func(ctx context.Context) error) {
	a.submit(job{sessionID: sessionID, name: name, write: write})
}

// Retire tombstones a reset session. Its pending and future snapshot saves
// and writes are skipped; cleanup runs in their place with the same retries.
func (a *Autosaver) Retire(sessionID string, cleanup ...func(ctx context.Context) error) {
	a.mu.Lock()
	delete(a.dirty, sessionID)
	a.retired[sessionID] = struct{}{}
	a.mu.Unlock()

	for _, fn := range cleanup {
		a.submit(job{sessionID: sessionID, name: "retire", write: fn, cleanup: true})
	}
}

func (a *Autosaver) submit(j job) {
	select {
	case a.queue <- j:
	default:
		a.logger.Warn("autosave queue full, deferring write", "write", j.name, "session_id", j.sessionID)
		a.park(j)
	}
}

func (a *Autosaver) park(j job) {
	a.mu.Lock()
	a.backlog = append(a.backlog, j)
	a.mu.Unlock()
}

// Run processes the queue and flushes parked work every interval until
// ctx is cancelled or Close is called, then performs a final save.
func (a *Autosaver) Run(ctx context.Context) error {
	a.running.Store(true)
	defer close(a.done)

	t := time.NewTicker(a.interval)
	defer t.Stop()

	for {
		select {
		case j := <-a.queue:
			a.do(ctx, j)
		case <-t.C:
			a.Flush(ctx)
		case <-ctx.Done():
			a.teardown()
			return nil
		case <-a.stop:
			a.teardown()
			return nil
		}
	}
}

// Close stops Run after its teardown save completes.
func (a *Autosaver) Close() error {
	a.stopOnce.Do(func() { close(a.stop) })
	if a.running.Load() {
		<-a.done
	}
	return nil
}

// Flush saves every dirty snapshot, then retries parked writes.
func (a *Autosaver) Flush(ctx context.Context) {
	a.mu.Lock()
	pending := a.dirty
	a.dirty = make(map[string]hunt.GameState)
	writes := a.backlog
	a.backlog = nil
	a.mu.Unlock()

	for _, st := range pending {
		a.save(ctx, st)
	}
	for _, j := range writes {
		a.do(ctx, j)
	}
}

// Pending reports how many snapshots and writes are waiting for a retry.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dirty) + len(a.backlog)
}

func (a *Autosaver) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

drain:
	for {
		select {
		case j := <-a.queue:
			a.do(ctx, j)
		default:
			break drain
		}
	}
	a.Flush(ctx)
	if n := a.Pending(); n > 0 {
		a.logger.Error("work left unsaved at shutdown", "count", n)
	}
}

func (a *Autosaver) do(ctx context.Context, j job) {
	if j.state != nil {
		a.save(ctx, *j.state)
		return
	}
	if !j.cleanup && a.isRetired(j.sessionID) {
		return
	}
	if err := j.write(ctx); err != nil {
		j.attempts++
		if j.attempts >= maxWriteAttempts {
			a.logger.Error("background write abandoned",
				"write", j.name,
				"session_id", j.sessionID,
				"attempts", j.attempts,
				"error", err,
			)
			return
		}
		a.logger.Warn("background write failed", "write", j.name, "session_id", j.sessionID, "error", err)
		a.park(j)
	}
}

func (a *Autosaver) save(ctx context.Context, st hunt.GameState) {
	if a.isRetired(st.SessionID) {
		return
	}
	if err := a.store.Save(ctx, st); err != nil {
		a.logger.Error("autosave failed",
			"session_id", st.SessionID,
			"revision", st.Revision,
			"error", err,
		)
		a.markDirty(st)
	}
}

func (a *Autosaver) markDirty(st hunt.GameState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, gone := a.retired[st.SessionID]; gone {
		return
	}
	if cur, ok := a.dirty[st.SessionID]; ok && cur.Revision > st.Revision {
		return
	}
	a.dirty[st.SessionID] = st
}

func (a *Autosaver) isRetired(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, gone := a.retired[sessionID]
	return gone
}
