package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	// Realtime observers (routing decisions, storage degradation)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Routing
		r.Post("/route", h.ProcessMessage)
		r.Get("/agents", h.ListAgents)
		r.Get("/sessions/{id}", h.GetSession)

		// Memory
		r.Post("/memory", h.StoreMemory)
		r.Post("/memory/recall", h.RecallMemory)
		r.Get("/memory/{agentID}/stats", h.GetMemoryStats)
		r.Post("/memory/{agentID}/cleanup", h.CleanupMemory)
		r.Delete("/memory/{agentID}/{recordID}", h.DeleteMemoryRecord)
	})
}
