package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/domain"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/memory/pattern"
	"github.com/switchboardhq/switchboard/internal/port/errsink"
	"github.com/switchboardhq/switchboard/internal/port/recordstore"
	"github.com/switchboardhq/switchboard/internal/resilience"
)

// mockBackend is an in-memory recordstore.Backend with fault injection.
type mockBackend struct {
	mu        sync.Mutex
	name      string
	recs      []memory.Record
	insertErr error
	queryErr  error
	pingErr   error
	deleteErr error
	inserts   int
	queries   int
	pings     int
}

var _ recordstore.Backend = (*mockBackend)(nil)

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Insert(_ context.Context, rec *memory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *mockBackend) Query(_ context.Context, f recordstore.Filter) ([]memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []memory.Record
	for _, r := range m.recs {
		if f.AgentID != "" && r.AgentID != f.AgentID {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockBackend) TouchLastAccessed(_ context.Context, agentID string, ids []string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.recs {
		if m.recs[i].AgentID != agentID {
			continue
		}
		for _, id := range ids {
			if m.recs[i].ID == id {
				m.recs[i].LastAccessed = t
			}
		}
	}
	return nil
}

func (m *mockBackend) Delete(_ context.Context, agentID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i := range m.recs {
		if m.recs[i].AgentID == agentID && m.recs[i].ID == id {
			m.recs = append(m.recs[:i], m.recs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockBackend) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.pingErr
}

func (m *mockBackend) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func (m *mockBackend) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

// recordingSink collects reported events.
type recordingSink struct {
	mu     sync.Mutex
	events []errsink.Event
}

func (s *recordingSink) Report(_ context.Context, ev errsink.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) byKind(kind string) []errsink.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []errsink.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testMemoryConfig() config.Memory {
	return config.Defaults().Memory
}

func newFileModeService(backend *mockBackend) *MemoryService {
	s := NewMemoryService(
		config.Storage{Mode: config.ModeFile, PrimaryTimeout: time.Second},
		testMemoryConfig(),
		config.Breaker{MaxFailures: 3, Timeout: 30 * time.Second},
		nil, backend,
		pattern.New(),
		&recordingSink{},
	)
	n := 0
	s.newID = func() string { n++; return string(rune('a' + n - 1)) }
	return s
}

func TestStoreDerivesFields(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	rec, err := s.Store(context.Background(), &memory.StoreRequest{
		AgentID: "research",
		Kind:    memory.KindCorrection,
		Input:   "deploy the billing service",
		Output:  "Use blue-green deployment for the billing service.",
	})
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
	if rec.Relevance != 1.0 {
		t.Fatalf("correction prior should be 1.0, got %.2f", rec.Relevance)
	}
	if len(rec.Tags) == 0 {
		t.Fatal("expected derived tags")
	}
	if rec.Summary == "" {
		t.Fatal("expected derived summary")
	}
	if !rec.CreatedAt.Equal(fixed) || !rec.LastAccessed.Equal(fixed) {
		t.Fatalf("timestamps not taken from clock: %v / %v", rec.CreatedAt, rec.LastAccessed)
	}
	if backend.count() != 1 {
		t.Fatalf("expected 1 persisted record, got %d", backend.count())
	}
}

func TestStoreValidation(t *testing.T) {
	s := newFileModeService(&mockBackend{name: "file"})

	if _, err := s.Store(context.Background(), &memory.StoreRequest{
		Kind: memory.KindLog, Input: "x",
	}); err == nil {
		t.Fatal("expected validation error for missing agent_id")
	}
}

func TestStoreThenRecallTopHit(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)

	ctx := context.Background()
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog,
		Input:  "compare solar panel efficiency across vendors",
		Output: "Vendor A panels are 22% efficient, vendor B 19%.",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog,
		Input:  "draft a birthday card",
		Output: "Happy birthday!",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	res, err := s.Recall(ctx, &memory.RecallRequest{
		AgentID: "research",
		Query:   "solar panel efficiency",
	})
	if err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}
	if len(res.Entries) == 0 {
		t.Fatal("expected at least one entry")
	}
	if res.Entries[0].Input != "compare solar panel efficiency across vendors" {
		t.Fatalf("expected solar record first, got %q", res.Entries[0].Input)
	}
	for i := 1; i < len(res.Entries); i++ {
		if res.Entries[i].Score > res.Entries[i-1].Score {
			t.Fatal("entries not sorted by score descending")
		}
	}
}

func TestRecallHonorsMinRelevanceAndLimit(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Store(ctx, &memory.StoreRequest{
			AgentID: "research", Kind: memory.KindLog,
			Input:  "solar panel installation notes",
			Output: "notes",
		}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	res, err := s.Recall(ctx, &memory.RecallRequest{
		AgentID: "research",
		Query:   "solar panel",
		Options: memory.RecallOptions{Limit: 2},
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected limit 2, got %d", len(res.Entries))
	}
	if res.TotalMatches != 5 {
		t.Fatalf("expected 5 total matches, got %d", res.TotalMatches)
	}

	// A floor above any achievable score filters everything.
	res, err = s.Recall(ctx, &memory.RecallRequest{
		AgentID: "research",
		Query:   "completely unrelated topic",
		Options: memory.RecallOptions{MinRelevance: 0.99},
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("expected no entries above 0.99, got %d", len(res.Entries))
	}
}

func TestRecallIncludePatterns(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)

	ctx := context.Background()
	for range 4 {
		if _, err := s.Store(ctx, &memory.StoreRequest{
			AgentID: "research", Kind: memory.KindLog,
			Input:  "how does recall scoring work",
			Output: "weighted overlap",
		}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	res, err := s.Recall(ctx, &memory.RecallRequest{
		AgentID: "research",
		Query:   "recall scoring",
		Options: memory.RecallOptions{IncludePatterns: true},
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(res.Patterns) == 0 {
		t.Fatal("expected detected patterns in result")
	}
	if res.Patterns[0].Frequency != 4 {
		t.Fatalf("expected frequency 4, got %d", res.Patterns[0].Frequency)
	}
}

func TestCorrectionOutranksLogs(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)

	ctx := context.Background()
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "automation", Kind: memory.KindLog,
		Input:  "schedule the report emails",
		Output: "Scheduled for 9am.",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "automation", Kind: memory.KindCorrection,
		Input:  "schedule the report emails weekly not daily",
		Output: "Corrected: reports go out weekly.",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	res, err := s.Recall(ctx, &memory.RecallRequest{
		AgentID: "automation",
		Query:   "schedule report emails",
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(res.Entries) < 2 {
		t.Fatalf("expected both records, got %d", len(res.Entries))
	}
	if res.Entries[0].Kind != memory.KindCorrection {
		t.Fatalf("expected correction first, got %q", res.Entries[0].Kind)
	}
	if res.Entries[0].Score < 0.5 {
		t.Fatalf("expected correction score >= 0.5, got %.3f", res.Entries[0].Score)
	}
}

func TestHybridFallbackOnPrimaryFailure(t *testing.T) {
	down := errors.New("connection refused")
	primary := &mockBackend{name: "postgres", insertErr: down, queryErr: down, pingErr: down}
	fallback := &mockBackend{name: "file"}
	sink := &recordingSink{}

	s := NewMemoryService(
		config.Storage{Mode: config.ModeHybrid, PrimaryTimeout: time.Second},
		testMemoryConfig(),
		config.Breaker{MaxFailures: 2, Timeout: 30 * time.Second},
		primary, fallback,
		pattern.New(),
		sink,
	)

	rec, err := s.Store(context.Background(), &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog,
		Input:  "remember this",
		Output: "ok",
	})
	if err != nil {
		t.Fatalf("hybrid Store must not surface primary errors, got %v", err)
	}
	if rec == nil {
		t.Fatal("expected stored record")
	}
	if fallback.count() != 1 {
		t.Fatalf("expected record in fallback, got %d", fallback.count())
	}
	if got := sink.byKind(errsink.KindStorageFallback); len(got) != 1 {
		t.Fatalf("expected 1 storage_fallback event, got %d", len(got))
	}

	// The degraded write must be readable back through the file-backed path.
	res, err := s.Recall(context.Background(), &memory.RecallRequest{
		AgentID: "research",
		Query:   "remember this",
	})
	if err != nil {
		t.Fatalf("hybrid Recall must not surface primary errors, got %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].ID != rec.ID {
		t.Fatalf("expected the fallback record recalled, got %+v", res.Entries)
	}
}

func TestHybridBreakerStopsHammeringPrimary(t *testing.T) {
	primary := &mockBackend{name: "postgres", insertErr: errors.New("down"), pingErr: errors.New("down")}
	fallback := &mockBackend{name: "file"}

	s := NewMemoryService(
		config.Storage{Mode: config.ModeHybrid, PrimaryTimeout: time.Second},
		testMemoryConfig(),
		config.Breaker{MaxFailures: 2, Timeout: time.Hour},
		primary, fallback,
		pattern.New(),
		&recordingSink{},
	)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Store(ctx, &memory.StoreRequest{
			AgentID: "research", Kind: memory.KindLog,
			Input: "entry", Output: "ok",
		}); err != nil {
			t.Fatalf("Store %d: %v", i, err)
		}
	}

	// Lazy probe ping fails (1), first insert fails (2) -> breaker opens.
	// The remaining stores must go straight to the fallback.
	if got := primary.insertCount(); got != 1 {
		t.Fatalf("expected 1 primary insert attempt, got %d", got)
	}
	if fallback.count() != 5 {
		t.Fatalf("expected 5 fallback records, got %d", fallback.count())
	}
	if s.BreakerState() != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %s", s.BreakerState())
	}
}

func TestPrimaryModeSurfacesErrors(t *testing.T) {
	primary := &mockBackend{name: "postgres", insertErr: errors.New("down")}

	s := NewMemoryService(
		config.Storage{Mode: config.ModePrimary, PrimaryTimeout: time.Second},
		testMemoryConfig(),
		config.Breaker{MaxFailures: 3, Timeout: time.Minute},
		primary, nil,
		pattern.New(),
		&recordingSink{},
	)

	if _, err := s.Store(context.Background(), &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog, Input: "x", Output: "y",
	}); err == nil {
		t.Fatal("primary mode must surface backend errors")
	}
}

func TestDelete(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)

	ctx := context.Background()
	rec, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog, Input: "x", Output: "y",
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	ok, err := s.Delete(ctx, "research", rec.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Fatal("expected deletion")
	}

	ok, err = s.Delete(ctx, "research", rec.ID)
	if err != nil {
		t.Fatalf("Delete of missing id must not error, got %v", err)
	}
	if ok {
		t.Fatal("expected false for already-deleted id")
	}
}

func TestCleanupTwoPhaseAndIdempotent(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()

	// Two ancient records, one low-relevance record, four fresh keepers.
	s.now = func() time.Time { return now.AddDate(0, 0, -60) }
	for range 2 {
		if _, err := s.Store(ctx, &memory.StoreRequest{
			AgentID: "research", Kind: memory.KindLog, Input: "ancient entry", Output: "old",
		}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	s.now = func() time.Time { return now }
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog, Input: "weak entry", Output: "meh",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Store(ctx, &memory.StoreRequest{
			AgentID: "research", Kind: memory.KindGoal, Input: "keep this goal", Output: "ok",
		}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	// Phase 1 drops the 2 ancient (age) and the 1 log-prior record
	// (relevance 0.5 < 0.6); phase 2 trims the 4 goals down to 3.
	deleted, err := s.Cleanup(ctx, &memory.CleanupRequest{
		AgentID:      "research",
		MaxAgeDays:   30,
		MinRelevance: 0.6,
		MaxEntries:   3,
	})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deletions, got %d", deleted)
	}
	if backend.count() != 3 {
		t.Fatalf("expected 3 survivors, got %d", backend.count())
	}

	// Same parameters again: nothing left to delete.
	deleted, err = s.Cleanup(ctx, &memory.CleanupRequest{
		AgentID:      "research",
		MaxAgeDays:   30,
		MinRelevance: 0.6,
		MaxEntries:   3,
	})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("cleanup not idempotent: deleted %d", deleted)
	}
}

func TestStats(t *testing.T) {
	backend := &mockBackend{name: "file"}
	s := newFileModeService(backend)

	ctx := context.Background()
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindLog, Input: "one", Output: "a",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Store(ctx, &memory.StoreRequest{
		AgentID: "research", Kind: memory.KindGoal, Input: "two", Output: "b",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	st, err := s.Stats(ctx, "research", "")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalEntries != 2 {
		t.Fatalf("expected 2 entries, got %d", st.TotalEntries)
	}
	if st.ByKind[memory.KindLog] != 1 || st.ByKind[memory.KindGoal] != 1 {
		t.Fatalf("unexpected kind counts: %v", st.ByKind)
	}
	want := (0.5 + 0.9) / 2
	if st.AverageRelevance < want-1e-9 || st.AverageRelevance > want+1e-9 {
		t.Fatalf("expected average relevance %.2f, got %.3f", want, st.AverageRelevance)
	}
}
