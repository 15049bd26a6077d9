// Package pattern tracks recurring input shapes across stored records.
//
// A shape is extracted from an input by an ordered list of structural
// regexes (first match wins). Patterns accumulate frequency, bounded example
// and correction buffers, and feed recall results and the frequency bonus of
// relevance scoring.
package pattern

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/memory/score"
)

const (
	maxExamples    = 5
	maxCorrections = 3
	maxRelevant    = 3
	frequencyFloor = 3 // patterns above this frequency are always relevant
)

// Rule is one structural signature rule. Rules are data, not control flow,
// so each can be tested on its own and new rules slot in without touching
// the matching loop.
type Rule struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultRules is the ordered rule table: first match wins.
var DefaultRules = []Rule{
	{Name: "question", Re: regexp.MustCompile(`(?i)^(what|how|why|when|where|who|which|can|could|should|would|does|do|is|are)\b`)},
	{Name: "action", Re: regexp.MustCompile(`(?i)^(create|make|build|generate|write|draft|add|set\s?up|start)\b`)},
	{Name: "explain", Re: regexp.MustCompile(`(?i)^(explain|describe|tell\s+me|show\s+me|walk\s+me)\b`)},
	{Name: "troubleshoot", Re: regexp.MustCompile(`(?i)^(fix|debug|solve|repair|resolve|troubleshoot|diagnose)\b`)},
	{Name: "analyze", Re: regexp.MustCompile(`(?i)^(analyze|analyse|compare|evaluate|review|assess|summarize|summarise)\b`)},
}

// Detector tracks patterns keyed by signature. It is mutated on every store,
// so all access is serialized by its own mutex.
type Detector struct {
	mu       sync.Mutex
	rules    []Rule
	patterns map[string]*memory.Pattern
	now      func() time.Time
}

// New creates a Detector with the default rule table.
func New() *Detector {
	return NewWithRules(DefaultRules)
}

// NewWithRules creates a Detector with a custom rule table.
func NewWithRules(rules []Rule) *Detector {
	return &Detector{
		rules:    rules,
		patterns: make(map[string]*memory.Pattern),
		now:      time.Now,
	}
}

// Signature returns the normalized shape of input: the name of the first
// matching rule plus the matched prefix, lowercased. Inputs matching no rule
// share the "general" signature.
func (d *Detector) Signature(input string) string {
	trimmed := strings.TrimSpace(input)
	for _, r := range d.rules {
		if m := r.Re.FindString(trimmed); m != "" {
			return r.Name + ":" + strings.ToLower(strings.Join(strings.Fields(m), " "))
		}
	}
	return "general"
}

// Observe updates or creates the pattern matching rec's input.
func (d *Detector) Observe(rec *memory.Record) {
	sig := d.Signature(rec.Input)

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.patterns[sig]
	if !ok {
		p = &memory.Pattern{Signature: sig}
		d.patterns[sig] = p
	}
	p.Frequency++
	p.LastSeen = d.now()
	p.Examples = appendBounded(p.Examples, rec.Input, maxExamples)

	if rec.Kind == memory.KindCorrection && rec.Output != "" {
		p.Corrections = appendBounded(p.Corrections, rec.Output, maxCorrections)
	}
}

// RecordCorrection appends text to the correction buffer of the pattern
// matching inputSignature's shape.
func (d *Detector) RecordCorrection(input, correction string) {
	sig := d.Signature(input)

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.patterns[sig]
	if !ok {
		p = &memory.Pattern{Signature: sig}
		d.patterns[sig] = p
	}
	p.Corrections = appendBounded(p.Corrections, correction, maxCorrections)
}

// Frequency returns how often input's shape has been observed.
func (d *Detector) Frequency(input string) int {
	sig := d.Signature(input)

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.patterns[sig]; ok {
		return p.Frequency
	}
	return 0
}

// Relevant returns patterns whose signature shares terms with query or
// whose frequency exceeds the floor, sorted by frequency descending and
// capped to 3. Returned values are copies.
func (d *Detector) Relevant(query string) []memory.Pattern {
	queryTerms := make(map[string]struct{})
	for _, t := range score.Terms(query) {
		queryTerms[t] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var out []memory.Pattern
	for _, p := range d.patterns {
		if p.Frequency > frequencyFloor || sharesTerm(p.Signature, queryTerms) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Signature < out[j].Signature
	})
	if len(out) > maxRelevant {
		out = out[:maxRelevant]
	}
	return out
}

// Top returns the n most frequent patterns, copies, frequency descending.
func (d *Detector) Top(n int) []memory.Pattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]memory.Pattern, 0, len(d.patterns))
	for _, p := range d.patterns {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Signature < out[j].Signature
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sharesTerm(signature string, queryTerms map[string]struct{}) bool {
	for _, t := range score.Terms(strings.ReplaceAll(signature, ":", " ")) {
		if _, ok := queryTerms[t]; ok {
			return true
		}
	}
	return false
}

// appendBounded appends v keeping at most n entries, oldest dropped first.
func appendBounded(buf []string, v string, n int) []string {
	buf = append(buf, v)
	if len(buf) > n {
		buf = buf[len(buf)-n:]
	}
	return buf
}

func clone(p *memory.Pattern) memory.Pattern {
	c := *p
	c.Examples = append([]string(nil), p.Examples...)
	c.Corrections = append([]string(nil), p.Corrections...)
	return c
}
