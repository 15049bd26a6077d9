package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	sbotel "github.com/switchboardhq/switchboard/internal/adapter/otel"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/domain"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/memory/pattern"
	"github.com/switchboardhq/switchboard/internal/memory/score"
	"github.com/switchboardhq/switchboard/internal/port/cache"
	"github.com/switchboardhq/switchboard/internal/port/errsink"
	"github.com/switchboardhq/switchboard/internal/port/recordstore"
	"github.com/switchboardhq/switchboard/internal/resilience"
)

// MemoryService owns persistence of interaction records: store, recall,
// stats, delete and cleanup, over a primary backend and a local file
// fallback. Backend selection follows the configured storage mode; in hybrid
// mode a circuit breaker mediates per-operation fallback so one transient
// primary error never cascades into a permanent downgrade.
type MemoryService struct {
	memCfg   config.Memory
	mode     config.StorageMode
	timeout  time.Duration
	primary  recordstore.Backend // nil in file mode
	fallback recordstore.Backend // nil in primary mode
	breaker  *resilience.Breaker
	detector *pattern.Detector
	cache    cache.Cache // optional recall cache, may be nil
	cacheTTL time.Duration
	sink     errsink.Sink
	metrics  *sbotel.Metrics // optional, may be nil

	probeOnce sync.Once

	genMu sync.Mutex
	gen   map[string]uint64 // per-agent cache generation

	now   func() time.Time // for testing
	newID func() string    // for testing
}

// MemoryOption customizes a MemoryService.
type MemoryOption func(*MemoryService)

// WithRecallCache attaches a recall result cache.
func WithRecallCache(c cache.Cache, ttl time.Duration) MemoryOption {
	return func(s *MemoryService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithMemoryMetrics attaches metric instruments.
func WithMemoryMetrics(m *sbotel.Metrics) MemoryOption {
	return func(s *MemoryService) { s.metrics = m }
}

// NewMemoryService creates a MemoryService. primary may be nil in file mode
// and fallback may be nil in primary mode; hybrid requires both.
func NewMemoryService(
	storageCfg config.Storage,
	memCfg config.Memory,
	breakerCfg config.Breaker,
	primary, fallback recordstore.Backend,
	detector *pattern.Detector,
	sink errsink.Sink,
	opts ...MemoryOption,
) *MemoryService {
	if sink == nil {
		sink = errsink.LogSink{}
	}
	s := &MemoryService{
		memCfg:   memCfg,
		mode:     storageCfg.Mode,
		timeout:  storageCfg.PrimaryTimeout,
		primary:  primary,
		fallback: fallback,
		breaker:  resilience.NewBreaker(breakerCfg.MaxFailures, breakerCfg.Timeout),
		detector: detector,
		sink:     sink,
		gen:      make(map[string]uint64),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detector exposes the pattern detector for collaborators (router, stats).
func (s *MemoryService) Detector() *pattern.Detector { return s.detector }

// BreakerState reports the primary-backend circuit state for health checks.
func (s *MemoryService) BreakerState() resilience.State { return s.breaker.State() }

// Store persists one completed exchange as a new record. The summary, tags
// and relevance prior are derived when not supplied. The write completes
// even if the caller's context is already canceled — a partially recorded
// exchange is worse than a slow one.
func (s *MemoryService) Store(ctx context.Context, req *memory.StoreRequest) (*memory.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	tags := req.Tags
	if len(tags) == 0 {
		tags = score.TopTerms(req.Input+" "+req.Output, s.memCfg.TagCount)
	}

	rec := &memory.Record{
		ID:           s.newID(),
		AgentID:      req.AgentID,
		UserID:       req.UserID,
		Kind:         req.Kind,
		Input:        req.Input,
		Output:       req.Output,
		Summary:      summarize(req.Input, req.Output, s.memCfg.SummaryMaxLen),
		Relevance:    memory.RelevancePrior(req.Kind),
		Tags:         tags,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		LastAccessed: now,
	}

	// Detach from caller cancellation; the primary timeout still bounds I/O.
	wctx := context.WithoutCancel(ctx)

	if err := s.write(wctx, rec); err != nil {
		return nil, err
	}

	s.detector.Observe(rec)
	s.bumpGeneration(rec.AgentID)

	if s.metrics != nil {
		s.metrics.MemoryStores.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent_id", rec.AgentID),
			attribute.String("kind", string(rec.Kind)),
		))
	}

	slog.Debug("memory stored",
		"record_id", rec.ID,
		"agent_id", rec.AgentID,
		"kind", rec.Kind,
	)
	return rec, nil
}

// write routes the insert according to the storage mode.
func (s *MemoryService) write(ctx context.Context, rec *memory.Record) error {
	switch s.mode {
	case config.ModeFile:
		return s.fallback.Insert(ctx, rec)

	case config.ModePrimary:
		// Primary-only callers opted out of degraded storage: errors surface.
		return s.primaryCall(ctx, func(cctx context.Context) error {
			return s.primary.Insert(cctx, rec)
		})

	default: // hybrid
		err := s.primaryCall(ctx, func(cctx context.Context) error {
			return s.primary.Insert(cctx, rec)
		})
		if err == nil {
			return nil
		}
		s.degrade(ctx, "store", rec.AgentID, err)
		if ferr := s.fallback.Insert(ctx, rec); ferr != nil {
			// Both backends failed; the record is lost. Log loudly but do
			// not surface — hybrid mode never throws storage errors.
			slog.Error("memory store failed on both backends",
				"agent_id", rec.AgentID, "primary_error", err, "fallback_error", ferr)
		}
		return nil
	}
}

// Recall retrieves the most relevant records for query. Every candidate is
// re-scored against the live query; stored relevance priors are ignored.
func (s *MemoryService) Recall(ctx context.Context, req *memory.RecallRequest) (*memory.RecallResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := sbotel.StartRecallSpan(ctx, req.AgentID)
	defer span.End()
	start := s.now()

	opts := req.Options
	if opts.Limit <= 0 {
		opts.Limit = s.memCfg.RecallLimit
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = s.memCfg.MinRelevance
	}

	if cached, ok := s.cachedResult(ctx, req, opts); ok {
		s.touchAsync(cached)
		return cached, nil
	}

	filter := recordstore.Filter{
		AgentID: req.AgentID,
		UserID:  req.UserID,
		Kind:    opts.KindFilter,
	}
	if opts.TimeRange > 0 {
		filter.Since = s.now().Add(-opts.TimeRange)
	}

	candidates, err := s.read(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var scored []memory.ScoredRecord
	for i := range candidates {
		freq := s.detector.Frequency(candidates[i].Input)
		sc := score.Score(req.Query, &candidates[i], freq, now)
		if sc < opts.MinRelevance {
			continue
		}
		scored = append(scored, memory.ScoredRecord{Record: candidates[i], Score: sc})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].LastAccessed.After(scored[j].LastAccessed)
	})

	total := len(scored)
	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}

	var sum float64
	for _, sr := range scored {
		sum += sr.Score
	}
	avg := 0.0
	if len(scored) > 0 {
		avg = sum / float64(len(scored))
	}

	result := &memory.RecallResult{
		Entries:          scored,
		TotalMatches:     total,
		AverageRelevance: avg,
	}
	if opts.IncludePatterns {
		result.Patterns = s.detector.Relevant(req.Query)
	}

	s.touchAsync(result)
	s.storeCachedResult(ctx, req, opts, result)

	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("agent_id", req.AgentID))
		s.metrics.MemoryRecalls.Add(ctx, 1, attrs)
		s.metrics.RecallDuration.Record(ctx, s.now().Sub(start).Seconds(), attrs)
	}

	return result, nil
}

// read routes the candidate query according to the storage mode.
func (s *MemoryService) read(ctx context.Context, f recordstore.Filter) ([]memory.Record, error) {
	switch s.mode {
	case config.ModeFile:
		return s.fallback.Query(ctx, f)

	case config.ModePrimary:
		var out []memory.Record
		err := s.primaryCall(ctx, func(cctx context.Context) error {
			var qerr error
			out, qerr = s.primary.Query(cctx, f)
			return qerr
		})
		return out, err

	default: // hybrid
		var out []memory.Record
		err := s.primaryCall(ctx, func(cctx context.Context) error {
			var qerr error
			out, qerr = s.primary.Query(cctx, f)
			return qerr
		})
		if err == nil {
			return out, nil
		}
		s.degrade(ctx, "recall", f.AgentID, err)
		return s.fallback.Query(ctx, f)
	}
}

// Stats aggregates memory state for one agent scope.
func (s *MemoryService) Stats(ctx context.Context, agentID, userID string) (*memory.Stats, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}

	records, err := s.read(ctx, recordstore.Filter{AgentID: agentID, UserID: userID})
	if err != nil {
		return nil, err
	}

	st := &memory.Stats{
		TotalEntries: len(records),
		ByKind:       make(map[memory.Kind]int),
		TopPatterns:  s.detector.Top(s.memCfg.RecentActivity),
	}

	var sum float64
	for i := range records {
		st.ByKind[records[i].Kind]++
		sum += records[i].Relevance
	}
	if len(records) > 0 {
		st.AverageRelevance = sum / float64(len(records))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastAccessed.After(records[j].LastAccessed)
	})
	if len(records) > s.memCfg.RecentActivity {
		records = records[:s.memCfg.RecentActivity]
	}
	st.RecentActivity = records

	return st, nil
}

// Delete removes a single record from whichever backend holds it.
// Returns false when the id is unknown to every reachable backend.
func (s *MemoryService) Delete(ctx context.Context, agentID, id string) (bool, error) {
	deleted := false

	tryBackend := func(b recordstore.Backend) error {
		err := b.Delete(ctx, agentID, id)
		if err == nil {
			deleted = true
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	switch s.mode {
	case config.ModeFile:
		if err := tryBackend(s.fallback); err != nil {
			return false, err
		}

	case config.ModePrimary:
		err := s.primaryCall(ctx, func(cctx context.Context) error {
			derr := s.primary.Delete(cctx, agentID, id)
			if errors.Is(derr, domain.ErrNotFound) {
				return nil
			}
			if derr == nil {
				deleted = true
			}
			return derr
		})
		if err != nil {
			return false, err
		}

	default: // hybrid: the record may live in either backend
		err := s.primaryCall(ctx, func(cctx context.Context) error {
			derr := s.primary.Delete(cctx, agentID, id)
			if errors.Is(derr, domain.ErrNotFound) {
				return nil
			}
			if derr == nil {
				deleted = true
			}
			return derr
		})
		if err != nil {
			s.degrade(ctx, "delete", agentID, err)
		}
		if !deleted {
			if err := tryBackend(s.fallback); err != nil {
				return false, err
			}
		}
	}

	if deleted {
		s.bumpGeneration(agentID)
	}
	return deleted, nil
}

// Cleanup runs the two-phase purge: (1) delete records older than
// MaxAgeDays or below MinRelevance, (2) if the remainder still exceeds
// MaxEntries, delete the lowest-frequency, oldest-first overflow.
// Running it twice with the same parameters deletes nothing the second time.
func (s *MemoryService) Cleanup(ctx context.Context, req *memory.CleanupRequest) (int, error) {
	if req.AgentID == "" {
		return 0, fmt.Errorf("agent_id is required")
	}

	records, err := s.read(ctx, recordstore.Filter{AgentID: req.AgentID})
	if err != nil {
		return 0, err
	}

	now := s.now()
	cutoff := now.AddDate(0, 0, -req.MaxAgeDays)

	var keep []memory.Record
	var doomed []memory.Record
	for i := range records {
		tooOld := req.MaxAgeDays > 0 && records[i].CreatedAt.Before(cutoff)
		tooWeak := req.MinRelevance > 0 && records[i].Relevance < req.MinRelevance
		if tooOld || tooWeak {
			doomed = append(doomed, records[i])
		} else {
			keep = append(keep, records[i])
		}
	}

	if req.MaxEntries > 0 && len(keep) > req.MaxEntries {
		overflow := len(keep) - req.MaxEntries
		sort.Slice(keep, func(i, j int) bool {
			fi := s.detector.Frequency(keep[i].Input)
			fj := s.detector.Frequency(keep[j].Input)
			if fi != fj {
				return fi < fj
			}
			return keep[i].CreatedAt.Before(keep[j].CreatedAt)
		})
		doomed = append(doomed, keep[:overflow]...)
	}

	deleted := 0
	for i := range doomed {
		ok, derr := s.Delete(ctx, req.AgentID, doomed[i].ID)
		if derr != nil {
			return deleted, derr
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		slog.Info("memory cleanup",
			"agent_id", req.AgentID,
			"deleted", deleted,
			"remaining", len(records)-deleted,
		)
	}
	return deleted, nil
}

// primaryCall runs fn against the primary backend with a bounded timeout,
// through the circuit breaker in hybrid mode. The first hybrid use probes
// backend health lazily so a dead primary is discovered before real traffic.
func (s *MemoryService) primaryCall(ctx context.Context, fn func(context.Context) error) error {
	call := func() error {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(cctx)
	}

	if s.mode != config.ModeHybrid {
		return call()
	}

	s.probeOnce.Do(func() {
		_ = s.breaker.Execute(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return s.primary.Ping(pctx)
		})
	})

	return s.breaker.Execute(call)
}

// degrade reports one degraded-storage operation.
func (s *MemoryService) degrade(ctx context.Context, op, agentID string, err error) {
	slog.Warn("primary backend degraded, using file fallback",
		"op", op,
		"agent_id", agentID,
		"error", err,
	)
	s.sink.Report(ctx, errsink.Event{
		Kind:      errsink.KindStorageFallback,
		AgentID:   agentID,
		Error:     err.Error(),
		Timestamp: s.now(),
	})
	if s.metrics != nil {
		s.metrics.StorageFallbacks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
		))
	}
}

// touchAsync updates LastAccessed for every returned record without holding
// up the recall response. Fire-and-forget by design.
func (s *MemoryService) touchAsync(result *memory.RecallResult) {
	if len(result.Entries) == 0 {
		return
	}
	agentID := result.Entries[0].AgentID
	ids := make([]string, len(result.Entries))
	for i := range result.Entries {
		ids[i] = result.Entries[i].ID
	}
	t := s.now()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		var err error
		switch s.mode {
		case config.ModeFile:
			err = s.fallback.TouchLastAccessed(ctx, agentID, ids, t)
		case config.ModePrimary:
			err = s.primary.TouchLastAccessed(ctx, agentID, ids, t)
		default:
			err = s.breaker.Execute(func() error {
				return s.primary.TouchLastAccessed(ctx, agentID, ids, t)
			})
			if err != nil {
				err = s.fallback.TouchLastAccessed(ctx, agentID, ids, t)
			}
		}
		if err != nil {
			slog.Debug("touch last_accessed failed", "agent_id", agentID, "error", err)
		}
	}()
}

// --- recall cache ---

func (s *MemoryService) cacheKey(req *memory.RecallRequest, opts memory.RecallOptions) string {
	s.genMu.Lock()
	gen := s.gen[req.AgentID]
	s.genMu.Unlock()

	return fmt.Sprintf("recall:%s:%d:%s:%s:%d:%.3f:%t:%s:%d",
		req.AgentID, gen, req.UserID, req.Query,
		opts.Limit, opts.MinRelevance, opts.IncludePatterns, opts.KindFilter, opts.TimeRange)
}

func (s *MemoryService) bumpGeneration(agentID string) {
	s.genMu.Lock()
	s.gen[agentID]++
	s.genMu.Unlock()
}

func (s *MemoryService) cachedResult(ctx context.Context, req *memory.RecallRequest, opts memory.RecallOptions) (*memory.RecallResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, s.cacheKey(req, opts))
	if err != nil || !ok {
		return nil, false
	}
	var result memory.RecallResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (s *MemoryService) storeCachedResult(ctx context.Context, req *memory.RecallRequest, opts memory.RecallOptions, result *memory.RecallResult) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, s.cacheKey(req, opts), data, s.cacheTTL)
}

// summarize builds a bounded extractive digest of output: the sentences
// sharing the most terms with input, kept in original order.
func summarize(input, output string, maxLen int) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	if maxLen <= 0 || len(output) <= maxLen {
		return output
	}

	inputTerms := make(map[string]struct{})
	for _, t := range score.Terms(input) {
		inputTerms[t] = struct{}{}
	}

	sentences := splitSentences(output)
	type ranked struct {
		idx     int
		overlap int
	}
	rankings := make([]ranked, len(sentences))
	for i, sent := range sentences {
		overlap := 0
		for _, t := range score.Terms(sent) {
			if _, ok := inputTerms[t]; ok {
				overlap++
			}
		}
		rankings[i] = ranked{idx: i, overlap: overlap}
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].overlap > rankings[j].overlap
	})

	chosen := make(map[int]bool)
	used := 0
	for _, r := range rankings {
		n := len(sentences[r.idx])
		if used+n > maxLen {
			continue
		}
		chosen[r.idx] = true
		used += n + 1
	}

	var b strings.Builder
	for i, sent := range sentences {
		if !chosen[i] {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sent)
	}
	if b.Len() == 0 {
		// No sentence fits; hard truncate.
		return output[:maxLen]
	}
	return b.String()
}

// splitSentences splits text on sentence-ending punctuation.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
