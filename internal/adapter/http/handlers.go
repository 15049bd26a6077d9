package http

import (
	"net/http"

	"github.com/switchboardhq/switchboard/internal/adapter/ws"
	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/port/agentbackend"
	"github.com/switchboardhq/switchboard/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Router   *service.RouterService
	Memory   *service.MemoryService
	Sessions *service.RoutingStateService
	Registry *agentbackend.Registry
	Hub      *ws.Hub
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

// ProcessMessage handles POST /api/v1/route: one user message in, one
// routed (or clarifying) response out.
func (h *Handlers) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ProcessRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Router.Process(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListAgents handles GET /api/v1/agents: the profiles of every agent with a
// registered backend, in catalog order.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	profiles := make([]agent.Profile, 0, len(agent.Profiles))
	for _, id := range h.Registry.Available() {
		if p, ok := agent.ProfileByID(id); ok {
			profiles = append(profiles, p)
		}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// GetSession handles GET /api/v1/sessions/{id}: the routing state snapshot
// for one session.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if !requireField(w, id, "session id") {
		return
	}
	writeJSON(w, http.StatusOK, h.Sessions.Snapshot(id))
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// StoreMemory handles POST /api/v1/memory: persist one exchange.
func (h *Handlers) StoreMemory(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[memory.StoreRequest](w, r)
	if !ok {
		return
	}

	rec, err := h.Memory.Store(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "record not found")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RecallMemory handles POST /api/v1/memory/recall: relevance-ranked retrieval.
func (h *Handlers) RecallMemory(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[memory.RecallRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Memory.Recall(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetMemoryStats handles GET /api/v1/memory/{agentID}/stats. An optional
// user_id query parameter narrows the scope.
func (h *Handlers) GetMemoryStats(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	if !requireField(w, agentID, "agent id") {
		return
	}

	stats, err := h.Memory.Stats(r.Context(), agentID, r.URL.Query().Get("user_id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DeleteMemoryRecord handles DELETE /api/v1/memory/{agentID}/{recordID}.
func (h *Handlers) DeleteMemoryRecord(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	recordID := urlParam(r, "recordID")
	if !requireField(w, agentID, "agent id") || !requireField(w, recordID, "record id") {
		return
	}

	deleted, err := h.Memory.Delete(r.Context(), agentID, recordID)
	if err != nil {
		writeDomainError(w, err, "record not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

// CleanupMemory handles POST /api/v1/memory/{agentID}/cleanup: the two-phase
// purge of aged, weak and overflow records.
func (h *Handlers) CleanupMemory(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	if !requireField(w, agentID, "agent id") {
		return
	}

	req, ok := readJSON[memory.CleanupRequest](w, r)
	if !ok {
		return
	}
	req.AgentID = agentID

	deleted, err := h.Memory.Cleanup(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

type healthResponse struct {
	Status         string `json:"status"`
	StorageBreaker string `json:"storage_breaker"`
	Sessions       int    `json:"sessions"`
	WSConnections  int    `json:"ws_connections"`
}

// Health handles GET /healthz. The service reports healthy even with the
// primary storage breaker open: hybrid mode keeps serving from the file
// fallback, and the breaker state is surfaced for operators.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		StorageBreaker: string(h.Memory.BreakerState()),
		Sessions:       h.Sessions.SessionCount(),
		WSConnections:  h.Hub.ConnectionCount(),
	})
}
