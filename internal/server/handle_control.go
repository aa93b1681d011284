package server

import (
	"net/http"

	"github.com/playperu/agenthunt/internal/game"
	"github.com/playperu/agenthunt/internal/persist"
)

type ControlSessionsResponse struct {
	Sessions []persist.Summary `json:"sessions"`
}

func handleControlSessions(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ControlSessionsResponse{Sessions: list})
	}
}
