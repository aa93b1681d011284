package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	svc := deps.Service
	broker := deps.Broker

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", handleSwaggerUI())
	if deps.Health != nil {
		r.Mount("/healthz", deps.Health)
	}

	r.Post("/api/sessions", handleCreateSession(svc))
	r.Get("/api/shares/{token}", handleRedeemShare(svc))

	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", handleGetSession(svc))
		r.Post("/begin", handleTransition(svc.Begin))
		r.Post("/start", handleTransition(svc.StartClues))
		r.Post("/acknowledge", handleTransition(svc.Acknowledge))
		r.Post("/attempts", handleAttempt(svc))
		r.Post("/lifelines", handleLifeline(svc))
		r.Get("/score", handleScore(svc))
		r.Get("/final", handleFinal(svc))
		r.Get("/checkpoints", handleCheckpoints(svc))
		r.Post("/reset", handleReset(svc))
		r.Post("/share", handleShare(svc))
		r.Delete("/notifications/{notificationID}", handleDismissNotification(svc))
		r.Get("/events", handleEvents(svc, broker))
		r.Get("/ws", handleEventsWS(logger, svc, broker))
	})

	if deps.ControlPasswordHash != "" {
		r.Route("/api/control", func(r chi.Router) {
			r.Use(controlAuth(deps.ControlUser, deps.ControlPasswordHash))
			r.Get("/sessions", handleControlSessions(svc))
		})
	} else {
		logger.Info("mission control disabled, CONTROL_PASSWORD_HASH not set")
	}

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
