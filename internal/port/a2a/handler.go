package a2a

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Handler serves the A2A protocol endpoints. Tasks execute synchronously:
// the response carries the routed agent's reply, and the task is kept in
// memory so peers can re-fetch it by id.
type Handler struct {
	baseURL    string
	dispatcher Dispatcher

	mu    sync.RWMutex
	tasks map[string]*TaskResponse
}

// NewHandler creates an A2A handler. dispatcher may be nil, in which case
// task creation fails with 503.
func NewHandler(baseURL string, dispatcher Dispatcher) *Handler {
	return &Handler{
		baseURL:    baseURL,
		dispatcher: dispatcher,
		tasks:      make(map[string]*TaskResponse),
	}
}

// MountRoutes registers A2A routes on the given chi router.
// These are mounted at the root level, not under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Post("/a2a/tasks", h.handleCreateTask)
	r.Get("/a2a/tasks/{id}", h.handleGetTask)
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	card := BuildAgentCard(h.baseURL)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(card)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, `{"error":"id is required"}`, http.StatusBadRequest)
		return
	}
	message, _ := req.Input["message"].(string)
	if message == "" {
		http.Error(w, `{"error":"input.message is required"}`, http.StatusBadRequest)
		return
	}
	if h.dispatcher == nil {
		http.Error(w, `{"error":"router not available"}`, http.StatusServiceUnavailable)
		return
	}

	// Peers may pin a session to keep a conversation going; the task id is
	// the fallback so each task gets at least per-task state.
	sessionID, _ := req.Input["session_id"].(string)
	if sessionID == "" {
		sessionID = req.ID
	}
	userID, _ := req.Input["user_id"].(string)

	resp := &TaskResponse{ID: req.ID, Status: "completed"}
	output, err := h.dispatcher.Dispatch(r.Context(), sessionID, userID, message)
	if err != nil {
		resp.Status = "failed"
		resp.Error = err.Error()
	} else {
		resp.Output = output
	}

	h.mu.Lock()
	h.tasks[req.ID] = resp
	h.mu.Unlock()

	slog.Info("a2a task processed", "id", req.ID, "skill", req.Skill, "status", resp.Status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	resp, ok := h.tasks[id]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
