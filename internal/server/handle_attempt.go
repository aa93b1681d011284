package server

import (
	"net/http"
	"strings"

	"github.com/playperu/agenthunt/internal/game"
)

const maxCodeLength = 64

type AttemptRequest struct {
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type LifelineRequest struct {
	RequestID string `json:"requestId,omitempty"`
}

// handleAttempt submits a code. A wrong code is a normal 200 response with
// correct=false and the penalty applied.
func handleAttempt(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AttemptRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Code) == "" {
			writeError(w, http.StatusUnprocessableEntity, "code is required")
			return
		}
		if len(req.Code) > maxCodeLength {
			writeError(w, http.StatusUnprocessableEntity, "code is too long")
			return
		}

		res, err := svc.SubmitCode(r.Context(), sessionID(r), req.RequestID, req.Code)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleLifeline reveals the current hint. With none left it answers 200
// with granted=false.
func handleLifeline(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LifelineRequest
		if err := readOptionalJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := svc.RequestLifeline(r.Context(), sessionID(r), req.RequestID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
