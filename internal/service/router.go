package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	sbotel "github.com/switchboardhq/switchboard/internal/adapter/otel"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/domain/routing"
	"github.com/switchboardhq/switchboard/internal/port/agentbackend"
	"github.com/switchboardhq/switchboard/internal/port/broadcast"
	"github.com/switchboardhq/switchboard/internal/port/errsink"
)

// ProcessRequest is one inbound user message.
type ProcessRequest struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	Input        string `json:"input"`
	CurrentAgent string `json:"current_agent,omitempty"` // client-tracked active agent, optional
}

// ProcessResult is the outcome of routing and dispatching one message.
// Success is false only for dispatch failures: the message then carries an
// apology, never an internal error.
type ProcessResult struct {
	Agent         string                `json:"agent"`
	Message       string                `json:"message"`
	Success       bool                  `json:"success"`
	Routed        bool                  `json:"routed"`
	Clarification bool                  `json:"clarification,omitempty"`
	SuppressIntro bool                  `json:"suppress_intro,omitempty"`
	MemoryUpdated bool                  `json:"memory_updated"`
	Intent        routing.Intent        `json:"intent"`
	Decision      routing.Decision      `json:"decision"`
	Context       []memory.ScoredRecord `json:"context,omitempty"`
}

// RouterService orchestrates one message end to end: recall prior context,
// analyze intent, evaluate routing against session state, dispatch to the
// chosen agent backend, then record the interaction. Memory and state
// writes happen after the response is composed and never block it.
type RouterService struct {
	intents  *IntentService
	state    *RoutingStateService
	mem      *MemoryService
	registry *agentbackend.Registry
	sink     errsink.Sink
	events   broadcast.Broadcaster
	metrics  *sbotel.Metrics
	memCfg   config.Memory
	cfg      config.Routing

	now func() time.Time // for testing
}

// NewRouterService creates a RouterService. events may be nil when no
// realtime listeners are configured.
func NewRouterService(
	intents *IntentService,
	state *RoutingStateService,
	mem *MemoryService,
	registry *agentbackend.Registry,
	sink errsink.Sink,
	events broadcast.Broadcaster,
	metrics *sbotel.Metrics,
	memCfg config.Memory,
	cfg config.Routing,
) *RouterService {
	return &RouterService{
		intents:  intents,
		state:    state,
		mem:      mem,
		registry: registry,
		sink:     sink,
		events:   events,
		metrics:  metrics,
		memCfg:   memCfg,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Process handles one user message. It never returns a routing error to the
// caller: dispatch failures degrade to an apology response so the
// conversation survives a broken backend.
func (s *RouterService) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("input is required")
	}

	ctx, span := sbotel.StartProcessSpan(ctx, req.SessionID, req.UserID)
	defer span.End()

	recall := s.recallContext(ctx, req)

	intent := s.intents.Analyze(req.Input)
	decision := s.state.EvaluateRouting(
		req.SessionID, intent.Agent, intent.Confidence,
		req.Input, intent.Signature, req.CurrentAgent,
	)

	span.SetAttributes(
		attribute.String("routing.target", decision.TargetAgent),
		attribute.Float64("routing.confidence", decision.Confidence),
		attribute.Bool("routing.should_route", decision.ShouldRoute),
	)

	result := &ProcessResult{
		Intent:   intent,
		Decision: decision,
		Context:  recall,
	}

	current := req.CurrentAgent
	if current == "" {
		current = s.state.Snapshot(req.SessionID).CurrentThread
	}

	switch {
	case decision.ShouldRoute:
		s.dispatch(ctx, req, decision, result)
	case decision.TargetAgent == current && current != "":
		s.passthrough(ctx, req, current, result)
	case decision.Confidence >= s.cfg.ClarifyThreshold:
		s.clarify(req, result)
	default:
		s.direct(result)
	}

	s.metrics.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", result.Agent),
		attribute.Bool("routed", result.Routed),
	))

	s.state.UpdateRoutingState(
		req.SessionID, intent.Agent, req.Input, intent.Signature,
		decision.Confidence, result.Routed,
	)
	s.record(ctx, req, result)
	s.broadcastDecision(ctx, req, result)

	return result, nil
}

// recallContext fetches prior interactions relevant to the input. Recall
// failures are tolerated: routing proceeds with no context.
func (s *RouterService) recallContext(ctx context.Context, req *ProcessRequest) []memory.ScoredRecord {
	res, err := s.mem.Recall(ctx, &memory.RecallRequest{
		AgentID: string(agent.Router),
		UserID:  req.UserID,
		Query:   req.Input,
		Options: memory.RecallOptions{Limit: s.memCfg.ContextLimit},
	})
	if err != nil {
		slog.Warn("context recall failed, routing without context",
			"session_id", req.SessionID, "error", err)
		return nil
	}
	return res.Entries
}

// dispatch routes the message to the decided target backend.
func (s *RouterService) dispatch(ctx context.Context, req *ProcessRequest, decision routing.Decision, result *ProcessResult) {
	target := agent.ID(decision.TargetAgent)

	backend, err := s.registry.Get(target)
	if err == nil {
		var resp *agent.Response
		ctx, span := sbotel.StartDispatchSpan(ctx, string(target), req.SessionID)
		resp, err = backend.ProcessInput(ctx, req.Input, req.UserID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err == nil {
			result.Agent = string(target)
			result.Success = true
			result.Routed = true
			result.SuppressIntro = decision.SuppressIntro
			result.Message = resp.Message
			if !decision.SuppressIntro {
				if prof, ok := agent.ProfileByID(target); ok {
					result.Message = fmt.Sprintf("[%s] %s", prof.Name, resp.Message)
				}
			}
			return
		}
	}

	// Backend missing or failed: apologize, stay on the router, and report.
	slog.Error("agent dispatch failed",
		"session_id", req.SessionID, "agent", target, "error", err)
	s.metrics.DispatchFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", string(target)),
	))
	s.sink.Report(ctx, errsink.Event{
		Kind:      errsink.KindDispatchFailure,
		AgentID:   string(target),
		SessionID: req.SessionID,
		Input:     req.Input,
		Error:     err.Error(),
		Timestamp: s.now(),
	})

	result.Agent = string(agent.Router)
	result.Success = false
	result.Routed = false
	result.Message = fmt.Sprintf(
		"Sorry, the %s agent is unavailable right now. Please try again in a moment.",
		target)
}

// clarify answers a mid-band message whose best candidate differs from the
// owning thread, listing the closest agents.
func (s *RouterService) clarify(req *ProcessRequest, result *ProcessResult) {
	candidates := s.intents.Candidates(req.Input, 3)

	var b strings.Builder
	b.WriteString("I'm not sure which agent fits best. ")
	if len(candidates) > 0 {
		b.WriteString("Did you mean:\n")
		for _, c := range candidates {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
	} else {
		b.WriteString("Could you rephrase what you need?")
	}

	result.Agent = string(agent.Router)
	result.Success = true
	result.Routed = false
	result.Clarification = true
	result.Message = b.String()
}

// direct answers in the router's own voice: no agent owns the conversation
// and the signal is too weak to name candidates, so list what is on offer.
func (s *RouterService) direct(result *ProcessResult) {
	var b strings.Builder
	b.WriteString("I route requests to specialized agents. Here's who I can bring in:\n")
	for _, p := range agent.Profiles {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
	}
	b.WriteString("What would you like to do?")

	result.Agent = string(agent.Router)
	result.Success = true
	result.Routed = false
	result.Message = b.String()
}

// passthrough keeps the message with the agent that already owns the
// conversation.
func (s *RouterService) passthrough(ctx context.Context, req *ProcessRequest, current string, result *ProcessResult) {
	backend, err := s.registry.Get(agent.ID(current))
	if err == nil {
		var resp *agent.Response
		resp, err = backend.ProcessInput(ctx, req.Input, req.UserID)
		if err == nil {
			result.Agent = current
			result.Success = true
			result.Routed = false
			result.SuppressIntro = true
			result.Message = resp.Message
			return
		}
	}

	slog.Error("passthrough dispatch failed",
		"session_id", req.SessionID, "agent", current, "error", err)
	s.metrics.DispatchFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", current),
	))
	s.sink.Report(ctx, errsink.Event{
		Kind:      errsink.KindDispatchFailure,
		AgentID:   current,
		SessionID: req.SessionID,
		Input:     req.Input,
		Error:     err.Error(),
		Timestamp: s.now(),
	})

	result.Agent = string(agent.Router)
	result.Success = false
	result.Routed = false
	result.Message = "Sorry, something went wrong handling that. Please try again."
}

// record persists the interaction as a router log entry. The write is fire
// and forget from the caller's perspective: Store itself detaches from ctx
// cancellation, and any error only logs.
func (s *RouterService) record(ctx context.Context, req *ProcessRequest, result *ProcessResult) {
	if _, err := s.mem.Store(ctx, &memory.StoreRequest{
		AgentID: string(agent.Router),
		UserID:  req.UserID,
		Kind:    memory.KindLog,
		Input:   req.Input,
		Output:  result.Message,
		Metadata: map[string]string{
			"session_id": req.SessionID,
			"agent":      result.Agent,
			"routed":     fmt.Sprintf("%t", result.Routed),
		},
	}); err != nil {
		slog.Warn("interaction record not stored",
			"session_id", req.SessionID, "error", err)
		return
	}
	result.MemoryUpdated = true
}

// broadcastDecision pushes the routing outcome to realtime listeners.
func (s *RouterService) broadcastDecision(ctx context.Context, req *ProcessRequest, result *ProcessResult) {
	if s.events == nil {
		return
	}
	s.events.BroadcastEvent(ctx, "routing_decision", map[string]any{
		"session_id":     req.SessionID,
		"agent":          result.Agent,
		"routed":         result.Routed,
		"confidence":     result.Decision.Confidence,
		"reason":         result.Decision.Reason,
		"damping":        result.Decision.DampingApplied,
		"suppress_intro": result.SuppressIntro,
	})
}
