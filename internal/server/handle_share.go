package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/agenthunt/internal/game"
)

func handleShare(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := svc.Share(r.Context(), sessionID(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, link)
	}
}

// handleRedeemShare resolves a handoff token from another device.
func handleRedeemShare(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Redeem(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
