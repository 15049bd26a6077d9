package service

import (
	"testing"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/memory/pattern"
)

func newIntentService() *IntentService {
	return NewIntentService(pattern.New())
}

func TestAnalyzeRuleMatches(t *testing.T) {
	s := newIntentService()

	tests := []struct {
		input string
		want  agent.ID
	}{
		{"automate my weekly report emails", agent.Automation},
		{"can you fix the broken import path", agent.Automation},
		{"research the best static site generators", agent.Research},
		{"find me recent papers on fusion", agent.Research},
		{"write a short story about a lighthouse", agent.Creative},
		{"brainstorm slogans for a coffee brand", agent.Creative},
		{"hello there", agent.Welcome},
		{"what can you do", agent.Welcome},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := s.Analyze(tt.input)
			if got.Agent != string(tt.want) {
				t.Fatalf("Analyze(%q).Agent = %q, want %q (reason %q)",
					tt.input, got.Agent, tt.want, got.Reason)
			}
		})
	}
}

func TestAnalyzeConfidenceBounds(t *testing.T) {
	s := newIntentService()

	// Strong structural match plus many keyword hits must still clamp at 1.
	in := "automate and schedule a script workflow to integrate and run everything"
	got := s.Analyze(in)
	if got.Confidence > 1.0 {
		t.Fatalf("confidence not clamped: %.3f", got.Confidence)
	}
	if got.Confidence < 0.6 {
		t.Fatalf("expected strong confidence, got %.3f", got.Confidence)
	}
}

func TestAnalyzeNoMatchFallsBack(t *testing.T) {
	s := newIntentService()

	got := s.Analyze("zzzz qqqq wwww")
	if got.Agent != string(agent.Welcome) {
		t.Fatalf("expected welcome fallback, got %q", got.Agent)
	}
	if got.Confidence >= 0.3 {
		t.Fatalf("fallback confidence should be low, got %.3f", got.Confidence)
	}
}

func TestAnalyzeCarriesSignature(t *testing.T) {
	s := newIntentService()

	got := s.Analyze("how do I automate backups")
	if got.Signature != "question:how" {
		t.Fatalf("expected question:how signature, got %q", got.Signature)
	}
}

func TestCandidatesRankedByRelevance(t *testing.T) {
	s := newIntentService()

	got := s.Candidates("write a story and brainstorm ideas", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != agent.Creative {
		t.Fatalf("expected creative first, got %q", got[0].ID)
	}
}

func TestCandidatesBounded(t *testing.T) {
	s := newIntentService()

	got := s.Candidates("anything", 10)
	if len(got) != len(agent.Profiles) {
		t.Fatalf("expected all %d profiles, got %d", len(agent.Profiles), len(got))
	}
}
