// Package memory provides the domain model for persistent interaction
// records with query-time relevance scoring.
package memory

import (
	"errors"
	"slices"
	"time"
)

// Kind categorizes the type of memory record. It determines the default
// relevance prior and retrieval grouping.
type Kind string

const (
	KindLog             Kind = "log"
	KindSummary         Kind = "summary"
	KindPattern         Kind = "pattern"
	KindCorrection      Kind = "correction"
	KindGoal            Kind = "goal"
	KindGoalProgress    Kind = "goal_progress"
	KindSessionSummary  Kind = "session_summary"
	KindSessionDecision Kind = "session_decision"
)

// ValidKinds lists all valid record kinds.
var ValidKinds = []Kind{
	KindLog, KindSummary, KindPattern, KindCorrection,
	KindGoal, KindGoalProgress, KindSessionSummary, KindSessionDecision,
}

// RelevancePrior returns the base relevance seeded for a kind at store time.
// Corrections and goals are seeded higher than plain logs; the prior is a
// starting point, not the retrieval score — recall re-scores every candidate
// against the live query.
func RelevancePrior(k Kind) float64 {
	switch k {
	case KindCorrection:
		return 1.0
	case KindGoal, KindSessionDecision:
		return 0.9
	case KindGoalProgress, KindSessionSummary:
		return 0.8
	case KindPattern, KindSummary:
		return 0.7
	default:
		return 0.5
	}
}

// Record is the persisted unit of interaction memory. A record is never
// mutated after creation except for LastAccessed and deletion; corrections
// are new records linking back via Metadata.
type Record struct {
	ID           string            `json:"id"`
	AgentID      string            `json:"agent_id"`
	UserID       string            `json:"user_id,omitempty"` // empty = global/anonymous scope
	Kind         Kind              `json:"kind"`
	Input        string            `json:"input"`
	Output       string            `json:"output"`
	Summary      string            `json:"summary"`
	Relevance    float64           `json:"relevance"` // prior in [0, 1.5]
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastAccessed time.Time         `json:"last_accessed"`
}

// ScoredRecord wraps a Record with its query-time computed score.
type ScoredRecord struct {
	Record
	Score float64 `json:"score"`
}

// StoreRequest is the input for storing a new record.
type StoreRequest struct {
	AgentID  string            `json:"agent_id"`
	UserID   string            `json:"user_id,omitempty"`
	Kind     Kind              `json:"kind"`
	Input    string            `json:"input"`
	Output   string            `json:"output"`
	Tags     []string          `json:"tags,omitempty"`     // computed from input+output when empty
	Metadata map[string]string `json:"metadata,omitempty"` // opaque, passed through unchanged
}

// Validate checks that a StoreRequest has all required fields.
func (r *StoreRequest) Validate() error {
	if r.AgentID == "" {
		return errors.New("agent_id is required")
	}
	if r.Input == "" {
		return errors.New("input is required")
	}
	if !slices.Contains(ValidKinds, r.Kind) {
		return errors.New("invalid kind")
	}
	return nil
}

// RecallOptions tunes a recall query.
type RecallOptions struct {
	Limit           int           `json:"limit"`
	MinRelevance    float64       `json:"min_relevance"`
	IncludePatterns bool          `json:"include_patterns"`
	KindFilter      Kind          `json:"kind_filter,omitempty"` // empty = all kinds
	TimeRange       time.Duration `json:"time_range,omitempty"`  // 0 = unbounded
}

// RecallRequest is the input for querying records.
type RecallRequest struct {
	AgentID string        `json:"agent_id"`
	UserID  string        `json:"user_id,omitempty"`
	Query   string        `json:"query"`
	Options RecallOptions `json:"options"`
}

// Validate checks that a RecallRequest has all required fields.
func (r *RecallRequest) Validate() error {
	if r.AgentID == "" {
		return errors.New("agent_id is required")
	}
	if r.Query == "" {
		return errors.New("query is required")
	}
	return nil
}

// RecallResult is the outcome of a recall query.
type RecallResult struct {
	Entries          []ScoredRecord `json:"entries"`
	TotalMatches     int            `json:"total_matches"`
	AverageRelevance float64        `json:"average_relevance"`
	Patterns         []Pattern      `json:"patterns,omitempty"`
}

// Pattern is a recurring input shape tracked for frequency and corrections.
// Patterns are derived in-memory state, not persisted across restarts.
type Pattern struct {
	Signature   string    `json:"signature"`
	Frequency   int       `json:"frequency"`
	LastSeen    time.Time `json:"last_seen"`
	Examples    []string  `json:"examples,omitempty"`    // bounded ring, max 5
	Corrections []string  `json:"corrections,omitempty"` // bounded ring, max 3
}

// Stats aggregates memory state for one agent scope.
type Stats struct {
	TotalEntries     int          `json:"total_entries"`
	ByKind           map[Kind]int `json:"by_kind"`
	AverageRelevance float64      `json:"average_relevance"`
	TopPatterns      []Pattern    `json:"top_patterns,omitempty"`
	RecentActivity   []Record     `json:"recent_activity,omitempty"`
}

// CleanupRequest controls the two-phase purge.
type CleanupRequest struct {
	AgentID      string  `json:"agent_id"`
	MaxAgeDays   int     `json:"max_age_days"`
	MinRelevance float64 `json:"min_relevance"`
	MaxEntries   int     `json:"max_entries"`
}
