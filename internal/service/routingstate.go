package service

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/domain/routing"
	"github.com/switchboardhq/switchboard/internal/memory/score"
)

// resetRequestRe matches explicit requests to start over with the current
// agent, which bypass the same-thread re-entry gate.
var resetRequestRe = regexp.MustCompile(`(?i)\b(start over|restart|reset|from scratch|new conversation)\b`)

// RoutingStateService owns per-session routing state: the agent currently
// holding the conversation, recent intents, damping and intro/continuation
// UX decisions. Each session's state is mutated under its own lock so
// overlapping requests from one user never lose updates; distinct sessions
// never contend.
type RoutingStateService struct {
	cfg config.Routing

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	now func() time.Time // for testing
}

// sessionEntry pairs one session's state with its lock.
type sessionEntry struct {
	mu    sync.Mutex
	state *routing.State
}

// NewRoutingStateService creates a RoutingStateService.
func NewRoutingStateService(cfg config.Routing) *RoutingStateService {
	return &RoutingStateService{
		cfg:      cfg,
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// session returns the entry for sessionID, creating it lazily on first use.
func (s *RoutingStateService) session(sessionID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		now := s.now()
		e = &sessionEntry{state: &routing.State{
			SessionID:        sessionID,
			CurrentThread:    "",
			SessionStartTime: now,
			LastActivity:     now,
			AgentLastVisit:   make(map[string]time.Time),
		}}
		s.sessions[sessionID] = e
	}
	return e
}

// Snapshot returns a copy of the session's state for read-only callers.
func (s *RoutingStateService) Snapshot(sessionID string) routing.State {
	e := s.session(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	st := *e.state
	st.RecentIntents = append([]routing.IntentRecord(nil), e.state.RecentIntents...)
	return st
}

// EvaluateRouting decides whether one message should hand off to
// targetAgent. currentAgent overrides the tracked thread when non-empty
// (callers may carry their own notion of the active agent).
func (s *RoutingStateService) EvaluateRouting(
	sessionID, targetAgent string,
	baseConfidence float64,
	input, intentSignature, currentAgent string,
) routing.Decision {
	e := s.session(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	now := s.now()
	st.LastActivity = now

	current := st.CurrentThread
	if currentAgent != "" {
		current = currentAgent
	}

	confidence := baseConfidence
	dec := routing.Decision{
		TargetAgent: targetAgent,
		Confidence:  confidence,
	}

	// A low-signal message never pulls the conversation away from the agent
	// holding it: the candidate resolves toward the current thread and the
	// message stays there.
	if current != "" && targetAgent != current && baseConfidence < s.cfg.ClarifyThreshold {
		dec.TargetAgent = current
		dec.ShouldRoute = false
		dec.SuppressIntro = true
		dec.Reason = "low-signal follow-up stays with current agent"
		return dec
	}

	// Same-thread re-entry: only a reset request or near-certainty restarts
	// the owning agent; everything else stays put without a fresh intro.
	if targetAgent == current && current != "" {
		if isReset := resetRequestRe.MatchString(input); isReset || baseConfidence >= s.cfg.ReentryConfidence {
			dec.ShouldRoute = true
			dec.Reason = "fresh re-entry to current agent"
			dec.SuppressIntro = !isReset && s.suppressIntro(st, targetAgent, now)
			return dec
		}
		dec.ShouldRoute = false
		dec.SuppressIntro = true
		dec.Reason = "already on target agent"
		return dec
	}

	// Anti-flicker: the same target routed moments ago needs very high
	// confidence to route again.
	if st.LastRoutedAgent == targetAgent &&
		now.Sub(st.LastRoutedTime) < s.cfg.AntiFlickerWindow &&
		baseConfidence < s.cfg.AntiFlickerOverride {
		dec.ShouldRoute = false
		dec.SuppressIntro = true
		dec.Reason = "target routed too recently"
		if current != "" {
			dec.TargetAgent = current
		}
		return dec
	}

	// Damping: a semantically similar intent in the recent window reduces
	// confidence so a user repeating themselves cannot inflate it.
	if s.similarIntentSeen(st, targetAgent, intentSignature, input, now) {
		confidence = baseConfidence - s.cfg.DampingPenalty
		if confidence < s.cfg.DampingFloor {
			confidence = s.cfg.DampingFloor
		}
		dec.Confidence = confidence
		dec.DampingApplied = true
	}

	// Repetition guard: a near-duplicate of the previous input within the
	// window never routes, regardless of confidence.
	if st.LastUserInput != "" &&
		now.Sub(st.LastInputTime) < s.cfg.RepetitionWindow &&
		score.Overlap(input, st.LastUserInput) > s.cfg.RepetitionSimilarity {
		dec.ShouldRoute = false
		dec.SuppressIntro = true
		dec.Reason = "near-duplicate of previous input"
		if current != "" {
			dec.TargetAgent = current
		}
		return dec
	}

	dec.SuppressIntro = s.suppressIntro(st, targetAgent, now)

	if confidence >= s.cfg.RouteThreshold && targetAgent != current {
		dec.ShouldRoute = true
		dec.Reason = "confidence above route threshold"
	} else {
		dec.ShouldRoute = false
		if dec.Reason == "" {
			dec.Reason = "confidence below route threshold"
		}
	}
	return dec
}

// suppressIntro reports whether the handoff preamble should be skipped:
// the target was visited recently, or the session is an ongoing
// conversation with at least one prior route.
func (s *RoutingStateService) suppressIntro(st *routing.State, targetAgent string, now time.Time) bool {
	if visited, ok := st.AgentLastVisit[targetAgent]; ok &&
		now.Sub(visited) < s.cfg.IntroSuppressWindow {
		return true
	}
	return now.Sub(st.SessionStartTime) > s.cfg.ContinuationAge && st.RoutingCount > 0
}

// similarIntentSeen reports whether a matching intent (same signature and
// target, similar input fingerprint) occurred within the damping window.
func (s *RoutingStateService) similarIntentSeen(st *routing.State, targetAgent, signature, input string, now time.Time) bool {
	for i := len(st.RecentIntents) - 1; i >= 0; i-- {
		ir := st.RecentIntents[i]
		if now.Sub(ir.Timestamp) > s.cfg.DampingWindow {
			break // entries are appended in time order
		}
		if ir.Signature == signature && ir.AgentID == targetAgent &&
			score.Overlap(input, ir.Fingerprint) > s.cfg.DampingSimilarity {
			return true
		}
	}
	return false
}

// UpdateRoutingState commits the outcome of one processed message.
func (s *RoutingStateService) UpdateRoutingState(
	sessionID, targetAgent, input, intentSignature string,
	confidence float64,
	wasRouted bool,
) {
	e := s.session(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	now := s.now()
	st.LastActivity = now

	if wasRouted {
		st.LastRoutedAgent = targetAgent
		st.LastRoutedTime = now
		st.CurrentThread = targetAgent
		st.RoutingCount++
		st.AgentLastVisit[targetAgent] = now
	}

	st.RecentIntents = append(st.RecentIntents, routing.IntentRecord{
		Signature:   intentSignature,
		AgentID:     targetAgent,
		Confidence:  confidence,
		Timestamp:   now,
		Fingerprint: input,
	})
	st.RecentIntents = pruneIntents(st.RecentIntents, now, s.cfg.IntentWindow, s.cfg.IntentLimit)

	st.LastUserInput = input
	st.LastInputTime = now
}

// pruneIntents enforces the count bound and time horizon on the window.
func pruneIntents(intents []routing.IntentRecord, now time.Time, horizon time.Duration, limit int) []routing.IntentRecord {
	cut := 0
	for cut < len(intents) && now.Sub(intents[cut].Timestamp) > horizon {
		cut++
	}
	intents = intents[cut:]
	if limit > 0 && len(intents) > limit {
		intents = intents[len(intents)-limit:]
	}
	return intents
}

// CleanupExpiredSessions evicts sessions idle past the TTL. It is invoked
// by the background sweep, never inline with request handling, keeping the
// hot path O(1) in session count.
func (s *RoutingStateService) CleanupExpiredSessions() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := now.Sub(e.state.LastActivity)
		e.mu.Unlock()
		if idle > s.cfg.SessionTTL {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("expired sessions evicted", "count", evicted, "active", len(s.sessions))
	}
	return evicted
}

// StartSweeper runs CleanupExpiredSessions on an independent ticker until
// ctx is canceled.
func (s *RoutingStateService) StartSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupExpiredSessions()
		}
	}
}

// SessionCount reports the number of live sessions, for health reporting.
func (s *RoutingStateService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
