package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/port/agentbackend"
	"github.com/switchboardhq/switchboard/internal/port/messagequeue"
)

// mockMemory records stores and serves canned recall results.
type mockMemory struct {
	stored []*memory.StoreRequest
	recall *memory.RecallResult
}

func (m *mockMemory) Store(_ context.Context, req *memory.StoreRequest) (*memory.Record, error) {
	m.stored = append(m.stored, req)
	return &memory.Record{ID: "r1", AgentID: req.AgentID}, nil
}

func (m *mockMemory) Recall(context.Context, *memory.RecallRequest) (*memory.RecallResult, error) {
	if m.recall == nil {
		return &memory.RecallResult{}, nil
	}
	return m.recall, nil
}

func TestBuiltinProcessInputStoresExchange(t *testing.T) {
	mem := &mockMemory{}
	b := NewResearch(mem)

	resp, err := b.ProcessInput(context.Background(), "research solar panel efficiency", "u1")
	if err != nil {
		t.Fatalf("ProcessInput returned error: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}
	if !strings.Contains(resp.Message, "solar") {
		t.Fatalf("expected topic in reply, got %q", resp.Message)
	}

	if len(mem.stored) != 1 {
		t.Fatalf("expected 1 stored exchange, got %d", len(mem.stored))
	}
	if mem.stored[0].AgentID != string(agent.Research) {
		t.Fatalf("exchange stored under %q, want %q", mem.stored[0].AgentID, agent.Research)
	}
	if mem.stored[0].Kind != memory.KindLog {
		t.Fatalf("expected log kind, got %q", mem.stored[0].Kind)
	}
}

func TestBuiltinMentionsPriorContext(t *testing.T) {
	mem := &mockMemory{recall: &memory.RecallResult{
		Entries: []memory.ScoredRecord{
			{Record: memory.Record{ID: "a"}, Score: 0.8},
			{Record: memory.Record{ID: "b"}, Score: 0.5},
		},
	}}
	b := NewCreative(mem)

	resp, err := b.ProcessInput(context.Background(), "write a product slogan", "u1")
	if err != nil {
		t.Fatalf("ProcessInput returned error: %v", err)
	}
	if !strings.Contains(resp.Message, "2 earlier related exchange") {
		t.Fatalf("expected prior-context note, got %q", resp.Message)
	}
}

func TestWelcomeListsAgents(t *testing.T) {
	b := NewWelcome(&mockMemory{})

	resp, err := b.ProcessInput(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("ProcessInput returned error: %v", err)
	}
	for _, p := range agent.Profiles {
		if p.ID == agent.Welcome {
			continue
		}
		if !strings.Contains(resp.Message, p.Name) {
			t.Fatalf("welcome reply missing %q: %q", p.Name, resp.Message)
		}
	}
}

func TestRegisterBuiltins(t *testing.T) {
	reg := agentbackend.NewRegistry()
	RegisterBuiltins(reg, &mockMemory{})

	want := []agent.ID{agent.Automation, agent.Creative, agent.Research, agent.Welcome}
	got := reg.Available()
	if len(got) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("agent %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// requestQueue serves canned request-reply responses.
type requestQueue struct {
	subject string
	request []byte
	reply   []byte
	err     error
}

func (q *requestQueue) Publish(context.Context, string, []byte) error { return nil }

func (q *requestQueue) Request(_ context.Context, subject string, data []byte, _ time.Duration) ([]byte, error) {
	q.subject = subject
	q.request = data
	return q.reply, q.err
}

func (q *requestQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *requestQueue) Drain() error      { return nil }
func (q *requestQueue) Close() error      { return nil }
func (q *requestQueue) IsConnected() bool { return true }

func TestRemoteProcessInput(t *testing.T) {
	reply, _ := json.Marshal(messagequeue.AgentReplyPayload{
		Success: true,
		Message: "done",
	})
	q := &requestQueue{reply: reply}

	profile, _ := agent.ProfileByID(agent.Research)
	r := NewRemote(profile, q)

	resp, err := r.ProcessInput(context.Background(), "find papers", "u1")
	if err != nil {
		t.Fatalf("ProcessInput returned error: %v", err)
	}
	if resp.Message != "done" {
		t.Fatalf("expected remote reply, got %q", resp.Message)
	}
	if q.subject != messagequeue.SubjectAgentRequestPrefix+"research" {
		t.Fatalf("unexpected subject %q", q.subject)
	}

	var req messagequeue.AgentRequestPayload
	if err := json.Unmarshal(q.request, &req); err != nil {
		t.Fatalf("unmarshal forwarded request: %v", err)
	}
	if req.Input != "find papers" || req.UserID != "u1" {
		t.Fatalf("unexpected forwarded request: %+v", req)
	}
}

func TestRemoteProcessInputWorkerFailure(t *testing.T) {
	reply, _ := json.Marshal(messagequeue.AgentReplyPayload{
		Success: false,
		Error:   "model overloaded",
	})
	q := &requestQueue{reply: reply}

	profile, _ := agent.ProfileByID(agent.Creative)
	r := NewRemote(profile, q)

	if _, err := r.ProcessInput(context.Background(), "write", ""); err == nil {
		t.Fatal("expected error from failed worker")
	}
}

func TestRemoteProcessInputTransportError(t *testing.T) {
	q := &requestQueue{err: errors.New("no responders")}

	profile, _ := agent.ProfileByID(agent.Automation)
	r := NewRemote(profile, q)

	if _, err := r.ProcessInput(context.Background(), "automate", ""); err == nil {
		t.Fatal("expected transport error to surface")
	}
}
