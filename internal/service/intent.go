package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/domain/routing"
	"github.com/switchboardhq/switchboard/internal/memory/pattern"
)

// IntentRule is one weighted routing heuristic. Rules are data, not control
// flow: each row can be unit-tested on its own and new rules extend the
// table without touching the analyzer.
type IntentRule struct {
	Name    string
	Agent   agent.ID
	Re      *regexp.Regexp // strong structural signal, may be nil
	Weight  float64        // confidence contributed by a regex match
	Keyword float64        // confidence contributed per keyword hit
}

// DefaultIntentRules is the ordered rule table used by the analyzer.
var DefaultIntentRules = []IntentRule{
	{
		Name:   "automation-verbs",
		Agent:  agent.Automation,
		Re:     regexp.MustCompile(`(?i)\b(automate|automation|schedule|script|workflow|integrate|cron|pipeline)\b`),
		Weight: 0.6, Keyword: 0.1,
	},
	{
		Name:   "troubleshooting",
		Agent:  agent.Automation,
		Re:     regexp.MustCompile(`(?i)\b(fix|debug|broken|error|failing|crash)\b`),
		Weight: 0.5, Keyword: 0.1,
	},
	{
		Name:   "research-verbs",
		Agent:  agent.Research,
		Re:     regexp.MustCompile(`(?i)\b(research|find|search|look up|compare|summarize|investigate)\b`),
		Weight: 0.6, Keyword: 0.1,
	},
	{
		Name:   "creative-verbs",
		Agent:  agent.Creative,
		Re:     regexp.MustCompile(`(?i)\b(write|draft|brainstorm|compose|story|poem|slogan|design)\b`),
		Weight: 0.6, Keyword: 0.1,
	},
	{
		Name:   "greeting",
		Agent:  agent.Welcome,
		Re:     regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening)|what can you do|help)\b`),
		Weight: 0.7, Keyword: 0.1,
	},
}

// IntentService maps free text to a candidate agent with a confidence and a
// human-readable reason. Heuristic by design: weighted regex and keyword
// rules, no model calls, fully deterministic.
type IntentService struct {
	rules    []IntentRule
	detector *pattern.Detector
}

// NewIntentService creates an IntentService with the default rule table.
func NewIntentService(detector *pattern.Detector) *IntentService {
	return NewIntentServiceWithRules(DefaultIntentRules, detector)
}

// NewIntentServiceWithRules creates an IntentService with a custom table.
func NewIntentServiceWithRules(rules []IntentRule, detector *pattern.Detector) *IntentService {
	return &IntentService{rules: rules, detector: detector}
}

// Analyze scores input against every rule and returns the best candidate.
// Confidence is clamped to [0, 1]. Inputs matching nothing fall back to the
// welcome agent with low confidence.
func (s *IntentService) Analyze(input string) routing.Intent {
	lower := strings.ToLower(input)

	bestScore := 0.0
	var bestRule *IntentRule

	for i := range s.rules {
		rule := &s.rules[i]
		sc := 0.0
		if rule.Re != nil && rule.Re.MatchString(input) {
			sc += rule.Weight
		}
		if prof, ok := agent.ProfileByID(rule.Agent); ok {
			for _, kw := range prof.Keywords {
				if strings.Contains(lower, kw) {
					sc += rule.Keyword
				}
			}
		}
		if sc > bestScore {
			bestScore = sc
			bestRule = rule
		}
	}

	signature := s.detector.Signature(input)

	if bestRule == nil {
		return routing.Intent{
			Agent:      string(agent.Welcome),
			Confidence: 0.2,
			Reason:     "no routing rule matched",
			Signature:  signature,
		}
	}

	if bestScore > 1.0 {
		bestScore = 1.0
	}

	return routing.Intent{
		Agent:      string(bestRule.Agent),
		Confidence: bestScore,
		Reason:     fmt.Sprintf("matched rule %q", bestRule.Name),
		Signature:  signature,
	}
}

// Candidates ranks agents by keyword and description overlap with input,
// for clarification responses. Returns up to n profiles, best first.
func (s *IntentService) Candidates(input string, n int) []agent.Profile {
	lower := strings.ToLower(input)

	type rankedProfile struct {
		profile agent.Profile
		hits    int
	}
	ranked := make([]rankedProfile, 0, len(agent.Profiles))
	for _, p := range agent.Profiles {
		hits := 0
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		for _, word := range strings.Fields(strings.ToLower(p.Description)) {
			if len(word) > 3 && strings.Contains(lower, word) {
				hits++
			}
		}
		ranked = append(ranked, rankedProfile{profile: p, hits: hits})
	}

	// Stable order: hits desc, catalog order for ties.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].hits > ranked[j-1].hits; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	out := make([]agent.Profile, 0, n)
	for _, r := range ranked {
		if len(out) == n {
			break
		}
		out = append(out, r.profile)
	}
	return out
}
