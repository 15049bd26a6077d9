package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/switchboardhq/switchboard/internal/domain"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/port/recordstore"
)

// Store implements recordstore.Backend on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Name identifies this backend in logs.
func (s *Store) Name() string { return "postgres" }

// Insert persists a new record.
func (s *Store) Insert(ctx context.Context, rec *memory.Record) error {
	const q = `
		INSERT INTO memory_records (id, agent_id, user_id, kind, input, output, summary, relevance, tags, metadata, created_at, last_accessed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	metadata := json.RawMessage(`{}`)
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal record metadata: %w", err)
		}
		metadata = b
	}

	_, err := s.pool.Exec(ctx, q,
		rec.ID, rec.AgentID, rec.UserID, string(rec.Kind), rec.Input, rec.Output,
		rec.Summary, rec.Relevance, rec.Tags, metadata, rec.CreatedAt, rec.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Query returns all records matching the filter, most recent first.
func (s *Store) Query(ctx context.Context, f recordstore.Filter) ([]memory.Record, error) {
	q := `
		SELECT id, agent_id, user_id, kind, input, output, summary, relevance, tags, metadata, created_at, last_accessed
		FROM memory_records
		WHERE agent_id = $1`
	args := []any{f.AgentID}

	if f.UserID != "" {
		args = append(args, f.UserID)
		q += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		q += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []memory.Record
	for rows.Next() {
		var rec memory.Record
		var kind string
		var metadata []byte
		if err := rows.Scan(
			&rec.ID, &rec.AgentID, &rec.UserID, &kind, &rec.Input, &rec.Output,
			&rec.Summary, &rec.Relevance, &rec.Tags, &metadata, &rec.CreatedAt, &rec.LastAccessed,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = memory.Kind(kind)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &rec.Metadata)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// TouchLastAccessed updates LastAccessed for the given record ids.
func (s *Store) TouchLastAccessed(ctx context.Context, agentID string, ids []string, t time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE memory_records SET last_accessed = $1 WHERE agent_id = $2 AND id = ANY($3)`
	if _, err := s.pool.Exec(ctx, q, t, agentID, ids); err != nil {
		return fmt.Errorf("touch records: %w", err)
	}
	return nil
}

// Delete removes a single record.
func (s *Store) Delete(ctx context.Context, agentID, id string) error {
	const q = `DELETE FROM memory_records WHERE agent_id = $1 AND id = $2`
	tag, err := s.pool.Exec(ctx, q, agentID, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping probes backend health with a lightweight count query.
func (s *Store) Ping(ctx context.Context) error {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM memory_records WHERE false`).Scan(&n); err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	return nil
}
