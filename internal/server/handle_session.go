package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/agenthunt/internal/game"
)

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func handleCreateSession(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, svc.Create(r.Context()))
	}
}

// handleGetSession returns the session view. Clients call it on load to
// decide between resuming and starting over.
func handleGetSession(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Get(r.Context(), sessionID(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleTransition serves the bodyless phase changes: begin, start and
// acknowledge.
func handleTransition(fn func(ctx context.Context, id string) (game.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(r.Context(), sessionID(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleReset(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Reset(r.Context(), sessionID(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
