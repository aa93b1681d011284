package persist

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/database"
	"github.com/playperu/agenthunt/internal/hunt"
	"github.com/playperu/agenthunt/internal/migrations"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteStore(db)
}

// playedState returns a snapshot two checkpoints into a hunt with one
// lifeline and one wrong code recorded.
func playedState(t *testing.T, id string) hunt.GameState {
	t.Helper()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := hunt.New(catalogue.Default(), id, hunt.WithClock(func() time.Time { return now }))
	m.Begin()
	m.StartClues()
	m.RequestLifeline("r1")
	now = now.Add(4 * time.Minute)
	m.SubmitCode("r2", "BAGGAGE CLAIMED")
	m.SubmitCode("r3", "WRONG")
	now = now.Add(9 * time.Minute)
	if _, err := m.SubmitCode("r4", "STAIRWAY SPY"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return m.State()
}

func TestSQLiteSnapshotRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	want := playedState(t, "sess-a")

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "sess-a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestSQLiteLoadMissing(t *testing.T) {
	s := openSQLite(t)
	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStaleSaveIgnored(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	newer := playedState(t, "sess-b")
	older := newer.Clone()
	older.Revision = 1
	older.TotalScore = 99

	if err := s.Save(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, older); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "sess-b")
	if err != nil {
		t.Fatal(err)
	}
	if got.Revision != newer.Revision || got.TotalScore != newer.TotalScore {
		t.Errorf("stale save overwrote newer snapshot: rev=%d score=%d", got.Revision, got.TotalScore)
	}

	list, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].CurrentCheckpoint != 2 || list[0].TotalScore != newer.TotalScore {
		t.Errorf("List = %+v", list)
	}
}

func TestSQLiteClear(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	s.Save(ctx, playedState(t, "sess-c"))

	if err := s.Clear(ctx, "sess-c"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "sess-c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Clear: err = %v", err)
	}
}

func TestSQLiteLedger(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	rec := CheckpointRecord{
		Checkpoint:      0,
		StartTime:       start,
		EndTime:         start.Add(5 * time.Minute),
		DurationSeconds: 300,
		TimeScore:       10,
		NetScore:        10,
	}
	if err := s.RecordCheckpoint(ctx, "sess-d", rec); err != nil {
		t.Fatal(err)
	}
	// Re-recording the same checkpoint updates the row.
	rec.NetScore = 7
	if err := s.RecordCheckpoint(ctx, "sess-d", rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Checkpoints(ctx, "sess-d")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].NetScore != 7 || !got[0].EndTime.Equal(rec.EndTime) {
		t.Errorf("Checkpoints = %+v", got)
	}

	a := InvalidAttempt{RequestID: "req-1", Checkpoint: 0, Code: "WRONG", Penalty: -2, At: start}
	for i := 0; i < 2; i++ {
		if err := s.RecordInvalidAttempt(ctx, "sess-d", a); err != nil {
			t.Fatal(err)
		}
	}
	attempts, err := s.InvalidAttempts(ctx, "sess-d")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || attempts[0].Code != "WRONG" {
		t.Errorf("InvalidAttempts = %+v", attempts)
	}

	if err := s.ClearLedger(ctx, "sess-d"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Checkpoints(ctx, "sess-d"); len(got) != 0 {
		t.Errorf("ledger not cleared: %+v", got)
	}
}

func TestSQLiteShares(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	if err := s.Put(ctx, "tok-live", "sess-e", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "tok-dead", "sess-e", -time.Minute); err != nil {
		t.Fatal(err)
	}

	id, err := s.Resolve(ctx, "tok-live")
	if err != nil || id != "sess-e" {
		t.Errorf("Resolve live = %q, %v", id, err)
	}
	if _, err := s.Resolve(ctx, "tok-dead"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve expired: err = %v", err)
	}
	if _, err := s.Resolve(ctx, "tok-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve missing: err = %v", err)
	}

	n, err := s.PurgeExpiredShares(ctx)
	if err != nil || n != 1 {
		t.Errorf("PurgeExpiredShares = %d, %v", n, err)
	}
}
