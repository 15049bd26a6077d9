// Package recordstore defines the record persistence port (interface).
package recordstore

import (
	"context"
	"time"

	"github.com/switchboardhq/switchboard/internal/domain/memory"
)

// Filter narrows a Query to a candidate superset. Zero values mean "any".
type Filter struct {
	AgentID string
	UserID  string
	Kind    memory.Kind
	Since   time.Time
}

// Backend is the port interface for a record storage backend. The persisted
// record shape must round-trip exactly between Insert and Query.
type Backend interface {
	// Name identifies the backend in logs ("postgres", "file").
	Name() string

	// Insert persists a new record.
	Insert(ctx context.Context, rec *memory.Record) error

	// Query returns all records matching the filter.
	Query(ctx context.Context, f Filter) ([]memory.Record, error)

	// TouchLastAccessed updates LastAccessed for the given record ids.
	TouchLastAccessed(ctx context.Context, agentID string, ids []string, t time.Time) error

	// Delete removes a single record. Returns domain.ErrNotFound when the
	// id does not exist in this backend.
	Delete(ctx context.Context, agentID, id string) error

	// Ping probes backend health with a lightweight count query.
	Ping(ctx context.Context) error
}
