package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
)

func echoDispatcher() Dispatcher {
	return DispatchFunc(func(_ context.Context, sessionID, _, input string) (map[string]any, error) {
		return map[string]any{
			"agent":      "research",
			"message":    "echo: " + input,
			"session_id": sessionID,
		}, nil
	})
}

func newTestRouter(d Dispatcher) *chi.Mux {
	h := NewHandler("http://localhost:8080", d)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestAgentCard(t *testing.T) {
	r := newTestRouter(echoDispatcher())
	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var card AgentCard
	if err := json.NewDecoder(w.Body).Decode(&card); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if card.Name != "Switchboard" {
		t.Fatalf("expected name Switchboard, got %s", card.Name)
	}
	// Routing skill plus one skill per cataloged agent.
	if len(card.Skills) != len(agent.Profiles)+1 {
		t.Fatalf("expected %d skills, got %d", len(agent.Profiles)+1, len(card.Skills))
	}
	if card.Skills[0].ID != "route-message" {
		t.Fatalf("expected route-message first, got %s", card.Skills[0].ID)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	r := newTestRouter(echoDispatcher())

	body := `{"id":"test-1","skill":"route-message","input":{"message":"find solar papers"}}`
	req := httptest.NewRequest(http.MethodPost, "/a2a/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp TaskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "completed" {
		t.Fatalf("expected completed, got %s", resp.Status)
	}
	if resp.Output["message"] != "echo: find solar papers" {
		t.Fatalf("unexpected output %v", resp.Output)
	}
	// The task id doubles as the session when none is given.
	if resp.Output["session_id"] != "test-1" {
		t.Fatalf("expected task id as session, got %v", resp.Output["session_id"])
	}

	req2 := httptest.NewRequest(http.MethodGet, "/a2a/tasks/test-1", http.NoBody)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
}

func TestCreateTaskDispatchFailure(t *testing.T) {
	failing := DispatchFunc(func(context.Context, string, string, string) (map[string]any, error) {
		return nil, errors.New("router exploded")
	})
	r := newTestRouter(failing)

	body := `{"id":"test-2","skill":"route-message","input":{"message":"anything"}}`
	req := httptest.NewRequest(http.MethodPost, "/a2a/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var resp TaskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "failed" || resp.Error == "" {
		t.Fatalf("expected failed task with error, got %+v", resp)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r := newTestRouter(echoDispatcher())
	req := httptest.NewRequest(http.MethodGet, "/a2a/tasks/nonexistent", http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateTaskInvalidBody(t *testing.T) {
	r := newTestRouter(echoDispatcher())
	req := httptest.NewRequest(http.MethodPost, "/a2a/tasks", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateTaskMissingFields(t *testing.T) {
	r := newTestRouter(echoDispatcher())

	for name, body := range map[string]string{
		"missing id":      `{"skill":"route-message","input":{"message":"x"}}`,
		"missing message": `{"id":"t","skill":"route-message","input":{}}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/a2a/tasks", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, w.Code)
		}
	}
}
