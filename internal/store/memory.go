package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/keel/internal/ir"
)

// Memory implements the Store operations in process memory.
// It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	catalogs map[string]ir.Catalog
	states   map[string]ir.ResourceState
	reports  map[string][]ir.RunReport
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		catalogs: make(map[string]ir.Catalog),
		states:   make(map[string]ir.ResourceState),
		reports:  make(map[string][]ir.RunReport),
	}
}

// StoreCatalog replaces the node's cached catalog with a copy of c.
func (m *Memory) StoreCatalog(_ context.Context, c ir.Catalog) error {
	if c.Node == "" {
		return fmt.Errorf("store catalog: node is required")
	}
	if err := ir.VerifyDigest(c); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	stored, err := cloneCatalog(c)
	if err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogs[c.Node] = stored
	return nil
}

// RetrieveLatest returns a copy of the node's cached catalog.
func (m *Memory) RetrieveLatest(_ context.Context, node string) (ir.Catalog, error) {
	m.mu.Lock()
	c, ok := m.catalogs[node]
	m.mu.Unlock()
	if !ok {
		return ir.Catalog{}, fmt.Errorf("retrieve catalog for %s: %w", node, ErrNotFound)
	}
	return cloneCatalog(c)
}

// GetState returns the state recorded for path.
func (m *Memory) GetState(_ context.Context, path string) (ir.ResourceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[path]
	if !ok {
		return ir.ResourceState{}, fmt.Errorf("get state %s: %w", path, ErrNotFound)
	}
	return st, nil
}

// PutState records st.
func (m *Memory) PutState(_ context.Context, st ir.ResourceState) error {
	if st.Path == "" {
		return fmt.Errorf("put state: path is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Path] = st
	return nil
}

// DeleteState forgets path.
func (m *Memory) DeleteState(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, path)
	return nil
}

// ListStates returns every recorded state ordered by path.
func (m *Memory) ListStates(_ context.Context) ([]ir.ResourceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make([]ir.ResourceState, 0, len(m.states))
	for _, st := range m.states {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Path < states[j].Path })
	return states, nil
}

// WriteReport appends r to the node's report history.
func (m *Memory) WriteReport(_ context.Context, r ir.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.Node] = append(m.reports[r.Node], r)
	return nil
}

// LatestReport returns the node's most recent report.
func (m *Memory) LatestReport(_ context.Context, node string) (ir.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.reports[node]
	if len(history) == 0 {
		return ir.RunReport{}, fmt.Errorf("latest report for %s: %w", node, ErrNotFound)
	}
	return history[len(history)-1], nil
}
