package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/agenthunt/internal/game"
	"github.com/playperu/agenthunt/internal/hunt"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse documents the /healthz body, keyed by dependency name.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type sessionPath struct {
	SessionID string `path:"sessionID"`
}

type notificationPath struct {
	SessionID      string `path:"sessionID"`
	NotificationID int64  `path:"notificationID"`
}

type sharePath struct {
	Token string `path:"token"`
}

type attemptInput struct {
	sessionPath
	AttemptRequest
}

type lifelineInput struct {
	sessionPath
	LifelineRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Agent Hunt API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend for the Agent Hunt checkpoint game. Sessions are identified by an opaque id; passwords are checked server-side and never returned.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/sessions
	createSession, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	createSession.SetSummary("Create session")
	createSession.SetDescription("Starts a new hunt at the welcome screen with 3 lifelines and a score of 0.")
	createSession.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusCreated))
	_ = r.AddOperation(createSession)

	// GET /api/sessions/{sessionID}
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}")
	getSession.SetSummary("Get session")
	getSession.SetDescription("Returns the session view. resumeAvailable tells the client to offer resume or new game.")
	getSession.AddReqStructure(sessionPath{})
	getSession.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
	getSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSession)

	for _, t := range []struct {
		path, summary, desc string
	}{
		{"/api/sessions/{sessionID}/begin", "Begin mission", "Moves from the welcome screen to the mission briefing."},
		{"/api/sessions/{sessionID}/start", "Start clues", "Starts the game clock and opens the first checkpoint."},
		{"/api/sessions/{sessionID}/acknowledge", "Acknowledge transmission", "Passes a narrative gate and starts the gated checkpoint's clock."},
		{"/api/sessions/{sessionID}/reset", "Reset session", "Discards all progress and continues under a new session id."},
	} {
		op, _ := r.NewOperationContext(http.MethodPost, t.path)
		op.SetSummary(t.summary)
		op.SetDescription(t.desc)
		op.AddReqStructure(sessionPath{})
		op.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
		_ = r.AddOperation(op)
	}

	// POST /api/sessions/{sessionID}/attempts
	postAttempt, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/attempts")
	postAttempt.SetSummary("Submit code")
	postAttempt.SetDescription("Checks a code for the current checkpoint. A wrong code returns 200 with correct=false and a -2 penalty. Resending the same requestId replays the first outcome.")
	postAttempt.AddReqStructure(attemptInput{})
	postAttempt.AddRespStructure(game.AttemptResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postAttempt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postAttempt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postAttempt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postAttempt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postAttempt)

	// POST /api/sessions/{sessionID}/lifelines
	postLifeline, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/lifelines")
	postLifeline.SetSummary("Request lifeline")
	postLifeline.SetDescription("Reveals the current checkpoint's hint for -3. Asking again on the same checkpoint is free. With none left, granted is false.")
	postLifeline.AddReqStructure(lifelineInput{})
	postLifeline.AddRespStructure(game.LifelineResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postLifeline.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postLifeline.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postLifeline)

	// GET /api/sessions/{sessionID}/score
	getScore, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/score")
	getScore.SetSummary("Current score")
	getScore.AddReqStructure(sessionPath{})
	getScore.AddRespStructure(hunt.Score{}, openapi.WithHTTPStatus(http.StatusOK))
	getScore.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getScore)

	// GET /api/sessions/{sessionID}/final
	getFinal, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/final")
	getFinal.SetSummary("Final score")
	getFinal.SetDescription("Checkpoint total plus completion, no-lifeline and perfect-code bonuses, with the agent rank.")
	getFinal.AddReqStructure(sessionPath{})
	getFinal.AddRespStructure(game.FinalResult{}, openapi.WithHTTPStatus(http.StatusOK))
	getFinal.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getFinal)

	// GET /api/sessions/{sessionID}/checkpoints
	getCheckpoints, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/checkpoints")
	getCheckpoints.SetSummary("Checkpoint timings")
	getCheckpoints.SetDescription("Per-checkpoint timing and penalty rows recorded as checkpoints are solved.")
	getCheckpoints.AddReqStructure(sessionPath{})
	getCheckpoints.AddRespStructure(CheckpointsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getCheckpoints.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getCheckpoints)

	// POST /api/sessions/{sessionID}/share
	postShare, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/share")
	postShare.SetSummary("Share session")
	postShare.SetDescription("Issues a handoff link and a QR image URL so another device can continue the hunt.")
	postShare.AddReqStructure(sessionPath{})
	postShare.AddRespStructure(game.ShareLink{}, openapi.WithHTTPStatus(http.StatusCreated))
	postShare.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postShare.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postShare)

	// GET /api/shares/{token}
	getShare, _ := r.NewOperationContext(http.MethodGet, "/api/shares/{token}")
	getShare.SetSummary("Redeem share token")
	getShare.AddReqStructure(sharePath{})
	getShare.AddRespStructure(game.View{}, openapi.WithHTTPStatus(http.StatusOK))
	getShare.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getShare)

	// DELETE /api/sessions/{sessionID}/notifications/{notificationID}
	dismiss, _ := r.NewOperationContext(http.MethodDelete, "/api/sessions/{sessionID}/notifications/{notificationID}")
	dismiss.SetSummary("Dismiss notification")
	dismiss.AddReqStructure(notificationPath{})
	dismiss.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	dismiss.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(dismiss)

	// GET /api/sessions/{sessionID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events: a snapshot event with the session view, then a state event per committed transition.")
	getEvents.AddReqStructure(sessionPath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/sessions/{sessionID}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}/ws")
	getWS.SetSummary("WebSocket event stream")
	getWS.SetDescription("Same events as the SSE stream, one JSON text message each.")
	getWS.AddReqStructure(sessionPath{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// GET /api/control/sessions
	getControl, _ := r.NewOperationContext(http.MethodGet, "/api/control/sessions")
	getControl.SetSummary("Mission control")
	getControl.SetDescription("Lists live and stored sessions. Requires HTTP basic auth.")
	getControl.AddRespStructure(ControlSessionsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getControl.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getControl)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func handleSwaggerUI() http.Handler {
	return v5emb.New("Agent Hunt API", "/openapi.json", "/docs")
}
