// Package audit persists finalized run records. Every run reaches a
// sink exactly once, whatever its final action was.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

// Sink receives finalized run records.
type Sink interface {
	// Record persists one finalized run. The stored record must decode
	// back to the exact run state that was passed in.
	Record(ctx context.Context, run *models.RunState) error
	// List returns stored runs, newest first, optionally filtered by
	// symbol. limit <= 0 means no limit.
	List(ctx context.Context, symbol string, limit int) ([]*models.RunState, error)
	// Get returns the run with the given id.
	Get(ctx context.Context, runID string) (*models.RunState, error)
	Close() error
}

// Encode serializes a run record for storage.
func Encode(run *models.RunState) ([]byte, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}
	return data, nil
}

// Decode restores a run record from its stored form.
func Decode(data []byte) (*models.RunState, error) {
	var run models.RunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &run, nil
}

// MemorySink keeps records in memory. Used in tests and as a safe
// default when no database path is configured.
type MemorySink struct {
	mu     sync.RWMutex
	runs   []*models.RunState
	byID   map[string]*models.RunState
	closed bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{byID: make(map[string]*models.RunState)}
}

// Record stores a copy of the run via the codec round-trip, so later
// mutation of the caller's value never leaks into the stored record.
func (m *MemorySink) Record(ctx context.Context, run *models.RunState) error {
	data, err := Encode(run)
	if err != nil {
		return err
	}
	stored, err := Decode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrSinkClosed
	}
	m.runs = append(m.runs, stored)
	m.byID[stored.RunID] = stored
	return nil
}

// List returns stored runs newest first.
func (m *MemorySink) List(ctx context.Context, symbol string, limit int) ([]*models.RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ErrSinkClosed
	}

	out := make([]*models.RunState, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if symbol != "" && m.runs[i].Symbol != symbol {
			continue
		}
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Get returns the run with the given id.
func (m *MemorySink) Get(ctx context.Context, runID string) (*models.RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ErrSinkClosed
	}
	run, ok := m.byID[runID]
	if !ok {
		return nil, errors.ErrRunNotFound
	}
	return run, nil
}

// Close marks the sink closed; further calls fail.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
