package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/database"
	"github.com/playperu/agenthunt/internal/game"
	"github.com/playperu/agenthunt/internal/handler/health"
	"github.com/playperu/agenthunt/internal/hunt"
	"github.com/playperu/agenthunt/internal/migrations"
	"github.com/playperu/agenthunt/internal/persist"
)

const controlPassword = "open-sesame"

var codes = []string{
	"BAGGAGE CLAIMED",
	"STAIRWAY SPY",
	"READ BETWEEN",
	"TAP SECRET",
	"SCI SPY",
	"BUDDING GENIUS",
	"MUFFIN MISSION",
	"ARMCHAIR AGENT",
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	router http.Handler
	svc    *game.Service
	broker *Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stores, err := persist.Open(persist.EngineSQLite, persist.Backends{DB: db})
	if err != nil {
		t.Fatalf("stores: %v", err)
	}

	saver := persist.NewAutosaver(stores.Snapshots, quietLogger(), time.Hour)
	go saver.Run(ctx)
	t.Cleanup(func() { saver.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(controlPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	broker := NewBroker()
	svc := game.New(catalogue.Default(), stores, saver, quietLogger(), game.WithPublisher(broker))
	router := NewRouter(quietLogger(), Deps{
		Service: svc,
		Broker:  broker,
		Health: health.NewHandler(quietLogger(), map[string]health.Checker{
			"sqlite": health.CheckFunc(db.PingContext),
		}).Routes(),
		ControlUser:         "control",
		ControlPasswordHash: string(hash),
	})
	return &testEnv{router: router, svc: svc, broker: broker}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[game.View](t, w).SessionID
}

func (e *testEnv) startClues(t *testing.T, id string) {
	t.Helper()
	for _, step := range []string{"begin", "start"} {
		if w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/"+step, nil); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", step, w.Code, w.Body.String())
		}
	}
}

func TestCreateAndGetSession(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v := decode[game.View](t, w)
	if v.Phase != hunt.PhaseWelcome || v.LifelinesRemaining != 3 || v.TotalScore != 0 || v.ResumeAvailable {
		t.Errorf("view = %+v", v)
	}
}

func TestUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/sessions/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestFullHuntOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)
	e.startClues(t, id)

	for i, code := range codes {
		v := decode[game.View](t, e.do(t, http.MethodGet, "/api/sessions/"+id, nil))
		if v.Phase == hunt.PhaseInterstitial {
			if w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/acknowledge", nil); w.Code != http.StatusOK {
				t.Fatalf("acknowledge: %d", w.Code)
			}
		}

		w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/attempts", AttemptRequest{Code: strings.ToLower(code)})
		if w.Code != http.StatusOK {
			t.Fatalf("checkpoint %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		body := w.Body.String()
		res := decode[game.AttemptResult](t, w)
		if !res.Correct {
			t.Fatalf("checkpoint %d: code rejected", i)
		}
		if i+1 < len(codes) && strings.Contains(body, codes[i+1]) {
			t.Errorf("checkpoint %d: response leaks the next password", i)
		}
	}

	w := e.do(t, http.MethodGet, "/api/sessions/"+id+"/final", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("final: %d", w.Code)
	}
	var final struct {
		TotalScore int `json:"totalScore"`
		AgentRank  struct {
			Title string `json:"title"`
		} `json:"agentRank"`
		Completed bool `json:"completed"`
	}
	json.NewDecoder(w.Body).Decode(&final)
	if final.TotalScore != 105 || !final.Completed || final.AgentRank.Title != "The Spy Who Scored Me" {
		t.Errorf("final = %+v", final)
	}

	w = e.do(t, http.MethodPost, "/api/sessions/"+id+"/attempts", AttemptRequest{Code: codes[7]})
	if w.Code != http.StatusConflict {
		t.Errorf("submit after completion: expected 409, got %d", w.Code)
	}
}

func TestWrongCodeIsNotAnError(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)
	e.startClues(t, id)

	w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/attempts", AttemptRequest{Code: "NOPE", RequestID: "r-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	res := decode[game.AttemptResult](t, w)
	if res.Correct || res.Penalty != -2 || res.View.TotalScore != -2 {
		t.Errorf("result = %+v", res)
	}

	// Retrying with the same request id does not charge twice.
	w = e.do(t, http.MethodPost, "/api/sessions/"+id+"/attempts", AttemptRequest{Code: "NOPE", RequestID: "r-1"})
	res = decode[game.AttemptResult](t, w)
	if !res.Replayed || res.View.TotalScore != -2 {
		t.Errorf("replay = %+v", res)
	}
}

func TestAttemptValidation(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"blank code", `{"code":"   "}`, http.StatusUnprocessableEntity},
		{"too long", `{"code":"` + strings.Repeat("A", 65) + `"}`, http.StatusUnprocessableEntity},
		{"wrong phase", `{"code":"BAGGAGE CLAIMED"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/attempts", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestLifelineOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)
	e.startClues(t, id)

	// No body is fine.
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/lifelines", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[game.LifelineResult](t, w)
	if !res.Granted || res.Hint == nil || res.Remaining != 2 || res.Penalty != -3 {
		t.Errorf("grant = %+v", res)
	}
	if res.View.Hint == nil || res.View.TotalScore != -3 {
		t.Errorf("view after lifeline = %+v", res.View)
	}

	sc := decode[hunt.Score](t, e.do(t, http.MethodGet, "/api/sessions/"+id+"/score", nil))
	if sc.CurrentScore != -3 || sc.Checkpoints != 0 {
		t.Errorf("score = %+v", sc)
	}
}

func TestResetOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)
	e.startClues(t, id)
	e.do(t, http.MethodPost, "/api/sessions/"+id+"/attempts", AttemptRequest{Code: codes[0]})

	w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v := decode[game.View](t, w)
	if v.SessionID == id || v.CurrentCheckpoint != 0 || v.LifelinesRemaining != 3 || v.TotalScore != 0 {
		t.Errorf("reset view = %+v", v)
	}
}

func TestShareOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/share", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("share: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	link := decode[game.ShareLink](t, w)
	if !strings.Contains(link.URL, "?session="+link.Token) || !strings.Contains(link.QRCodeURL, "size=200x200") {
		t.Errorf("link = %+v", link)
	}

	w = e.do(t, http.MethodGet, "/api/shares/"+link.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redeem: expected 200, got %d", w.Code)
	}
	if got := decode[game.View](t, w).SessionID; got != id {
		t.Errorf("redeemed session = %q, want %q", got, id)
	}

	if w := e.do(t, http.MethodGet, "/api/shares/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown token: expected 404, got %d", w.Code)
	}
}

func TestDismissNotification(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)
	e.startClues(t, id)

	res := decode[game.AttemptResult](t, e.do(t, http.MethodPost, "/api/sessions/"+id+"/attempts", AttemptRequest{Code: "WRONG"}))
	if len(res.View.Notifications) != 1 {
		t.Fatalf("notifications = %+v", res.View.Notifications)
	}
	path := "/api/sessions/" + id + "/notifications/"

	if w := e.do(t, http.MethodDelete, path+"abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	nid := res.View.Notifications[0].ID
	if w := e.do(t, http.MethodDelete, path+jsonNumber(nid), nil); w.Code != http.StatusNoContent {
		t.Errorf("dismiss: expected 204, got %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, path+jsonNumber(nid), nil); w.Code != http.StatusNotFound {
		t.Errorf("second dismiss: expected 404, got %d", w.Code)
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCheckpointsOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodGet, "/api/sessions/"+id+"/checkpoints", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[CheckpointsResponse](t, w); got.Checkpoints == nil {
		t.Error("checkpoints should be an empty list, not null")
	}
}

func TestControlAuth(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t)

	tests := []struct {
		name       string
		user, pass string
		wantStatus int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "control", "nope", http.StatusUnauthorized},
		{"wrong user", "admin", controlPassword, http.StatusUnauthorized},
		{"valid", "control", controlPassword, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/control/sessions", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if got := decode[ControlSessionsResponse](t, w); len(got.Sessions) != 1 {
					t.Errorf("sessions = %+v", got.Sessions)
				}
			}
		})
	}
}

func TestHealthMounted(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode[map[string]struct{ Status string }](t, w)
	if body["sqlite"].Status != "ok" {
		t.Errorf("body = %+v", body)
	}
}
