// Package memory implements the default in-process session cache.
package memory

import (
	"context"
	"sync"

	"datalik/internal/kpi"
	"datalik/internal/schema"
	"datalik/internal/session"
)

func init() {
	session.Register("memory", func(_ context.Context, _ session.Config) (session.Cache, error) {
		return New(), nil
	})
}

type entry struct {
	dataset *schema.Dataset

	// Last computed metrics, keyed by the request signature. At most
	// one result is retained; a new signature evicts the old one.
	metricsSig string
	metrics    *kpi.Result
}

// Store keeps one entry per session identity. Individual sessions are
// never accessed concurrently by design, but distinct sessions share
// the map, so the map itself is lock-protected.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// New returns an empty memory store.
func New() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Put replaces the session's dataset. Any cached metrics become stale
// and are dropped atomically with the swap; a reader can never observe
// the new dataset alongside old metrics.
func (s *Store) Put(_ context.Context, sessionID string, ds *schema.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &entry{dataset: ds}
	return nil
}

// Get returns the session's dataset, or *schema.NotFoundError when
// nothing has been uploaded yet.
func (s *Store) Get(_ context.Context, sessionID string) (*schema.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok || e.dataset == nil {
		return nil, &schema.NotFoundError{SessionID: sessionID}
	}
	return e.dataset, nil
}

// Metrics serves the cached result when the request signature matches
// the last computed one, recomputing otherwise.
func (s *Store) Metrics(_ context.Context, sessionID string, req kpi.Request) (*kpi.Result, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || e.dataset == nil {
		return nil, &schema.NotFoundError{SessionID: sessionID}
	}

	sig := req.Signature()
	if e.metrics != nil && e.metricsSig == sig {
		return e.metrics, nil
	}

	res, err := kpi.Compute(e.dataset, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Only cache onto the entry that was computed against; a Put that
	// raced in between swapped the entry pointer and must win.
	if cur := s.sessions[sessionID]; cur == e {
		e.metricsSig = sig
		e.metrics = res
	}
	s.mu.Unlock()
	return res, nil
}

// Invalidate drops cached metrics but keeps the dataset.
func (s *Store) Invalidate(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		e.metricsSig = ""
		e.metrics = nil
	}
	return nil
}

// Destroy removes all state for the session.
func (s *Store) Destroy(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Close is a no-op for the memory backend.
func (s *Store) Close() error { return nil }
