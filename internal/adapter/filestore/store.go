// Package filestore implements the record store port on local JSON files.
// One file per agent id, holding the full record array. It is the fallback
// backend when the primary store is degraded, and the sole backend in
// file-only mode.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/switchboardhq/switchboard/internal/domain"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/port/recordstore"
)

// Store implements recordstore.Backend on a directory of JSON files.
type Store struct {
	dir string
	mu  sync.Mutex // serializes read-modify-write cycles per process
}

// New creates a Store rooted at dir, creating it if missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Name identifies this backend in logs.
func (s *Store) Name() string { return "file" }

// Insert appends a record to the agent's file.
func (s *Store) Insert(_ context.Context, rec *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(rec.AgentID)
	if err != nil {
		return err
	}
	records = append(records, *rec)
	return s.save(rec.AgentID, records)
}

// Query returns all records matching the filter, most recent first.
func (s *Store) Query(_ context.Context, f recordstore.Filter) ([]memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(f.AgentID)
	if err != nil {
		return nil, err
	}

	var result []memory.Record
	for _, rec := range records {
		if f.UserID != "" && rec.UserID != f.UserID {
			continue
		}
		if f.Kind != "" && rec.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
			continue
		}
		result = append(result, rec)
	}
	// Most recent first, matching the primary backend's ordering.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// TouchLastAccessed updates LastAccessed for the given record ids.
func (s *Store) TouchLastAccessed(_ context.Context, agentID string, ids []string, t time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(agentID)
	if err != nil {
		return err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	touched := false
	for i := range records {
		if _, ok := want[records[i].ID]; ok {
			records[i].LastAccessed = t
			touched = true
		}
	}
	if !touched {
		return nil
	}
	return s.save(agentID, records)
}

// Delete removes a single record.
func (s *Store) Delete(_ context.Context, agentID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(agentID)
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].ID == id {
			records = append(records[:i], records[i+1:]...)
			return s.save(agentID, records)
		}
	}
	return domain.ErrNotFound
}

// Ping reports whether the store directory is usable.
func (s *Store) Ping(_ context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	return nil
}

// load reads the agent's record array. A missing file is an empty store.
func (s *Store) load(agentID string) ([]memory.Record, error) {
	path, err := s.path(agentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path components are sanitized
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []memory.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// save writes the agent's record array atomically (temp file + rename).
func (s *Store) save(agentID string, records []memory.Record) error {
	path, err := s.path(agentID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// path validates agentID is safe as a file name and returns its file path.
func (s *Store) path(agentID string) (string, error) {
	if agentID == "" {
		return "", errors.New("agent id is required")
	}
	if strings.ContainsAny(agentID, `/\`) || strings.Contains(agentID, "..") {
		return "", fmt.Errorf("invalid agent id %q", agentID)
	}
	return filepath.Join(s.dir, agentID+".json"), nil
}
