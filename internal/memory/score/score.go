// Package score computes query-time relevance of memory records.
//
// Scoring is deliberately simple, deterministic and inspectable: weighted
// term overlap plus frequency, recency and kind bonuses. No embeddings, no
// global state — Score is a pure function of its arguments.
package score

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/switchboardhq/switchboard/internal/domain/memory"
)

const maxTerms = 20

// stopWords are filtered out of term extraction.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "his": {}, "has": {}, "have": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "will": {},
	"would": {}, "there": {}, "their": {}, "what": {}, "about": {},
	"which": {}, "when": {}, "make": {}, "like": {}, "just": {}, "into": {},
	"your": {}, "some": {}, "could": {}, "them": {}, "than": {}, "then": {},
	"been": {}, "were": {}, "please": {},
}

// Weights used by Score. Exported so tests can assert rule-by-rule.
const (
	SummaryTermWeight  = 0.4
	InputTermWeight    = 0.3
	TagTermWeight      = 0.2
	FrequencyStep      = 0.1
	FrequencyCap       = 0.3
	RecencyMax         = 0.2
	RecencyDecayPerDay = 0.01
	CorrectionBonus    = 0.3
	PatternBonus       = 0.2
)

// Terms extracts lowercase key terms from text: stop-word filtered, longer
// than 2 characters, capped at maxTerms in order of first appearance.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}

// TermFrequencies counts term occurrences across text without the
// uniqueness cap, for tag derivation.
func TermFrequencies(text string) map[string]int {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	freq := make(map[string]int)
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		freq[f]++
	}
	return freq
}

// TopTerms returns the n most frequent terms of text, most frequent first.
// Ties are broken lexicographically so the result is deterministic.
func TopTerms(text string, n int) []string {
	freq := TermFrequencies(text)
	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// Score computes the relevance of rec for query at time now, in [0, 1].
// frequency is how often the record's input shape has been seen (0 when
// pattern tracking is off). The stored relevance prior is intentionally
// ignored: every recall re-derives the score against the live query.
func Score(query string, rec *memory.Record, frequency int, now time.Time) float64 {
	queryTerms := Terms(query)
	if len(queryTerms) == 0 {
		return 0
	}

	summaryTerms := toSet(Terms(rec.Summary))
	inputTerms := toSet(Terms(rec.Input))
	tagTerms := make(map[string]struct{}, len(rec.Tags))
	for _, t := range rec.Tags {
		tagTerms[strings.ToLower(t)] = struct{}{}
	}

	var s float64
	for _, t := range queryTerms {
		if _, ok := summaryTerms[t]; ok {
			s += SummaryTermWeight
		}
		if _, ok := inputTerms[t]; ok {
			s += InputTermWeight
		}
		if _, ok := tagTerms[t]; ok {
			s += TagTermWeight
		}
	}

	s += min(float64(frequency)*FrequencyStep, FrequencyCap)

	days := now.Sub(rec.LastAccessed).Hours() / 24
	if days < 0 {
		days = 0
	}
	s += max(0, RecencyMax-days*RecencyDecayPerDay)

	switch rec.Kind {
	case memory.KindCorrection:
		s += CorrectionBonus
	case memory.KindPattern:
		s += PatternBonus
	}

	return min(s, 1.0)
}

// Overlap returns the token-set similarity of two strings:
// 2*|common| / (|a|+|b|) over tokens longer than 2 characters. Identical
// strings score 1.0; empty-vs-nonempty scores 0.
func Overlap(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	ta, tb := Terms(a), Terms(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setA := toSet(ta)
	common := 0
	for _, t := range tb {
		if _, ok := setA[t]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(ta)+len(tb))
}

func toSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}
