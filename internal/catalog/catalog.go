// Package catalog stores the branch and store records the discovery core
// projects from.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/cafescout/internal/discovery/domain"
)

// ErrNotFound indicates a missing branch or store.
var ErrNotFound = errors.New("catalog: not found")

// Source exposes branch/store reads and writes.
type Source interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error)
	ListStores(ctx context.Context) (map[uuid.UUID]domain.Store, error)
	UpsertBranch(ctx context.Context, branch domain.Branch) error
	UpsertStore(ctx context.Context, store domain.Store) error
}

// MemoryCatalog is an in-memory Source for tests and local demos.
type MemoryCatalog struct {
	mu       sync.RWMutex
	branches map[uuid.UUID]domain.Branch
	stores   map[uuid.UUID]domain.Store
}

// NewMemoryCatalog constructs an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		branches: make(map[uuid.UUID]domain.Branch),
		stores:   make(map[uuid.UUID]domain.Store),
	}
}

// ListBranches returns all branches in a stable (id-sorted) order.
func (m *MemoryCatalog) ListBranches(_ context.Context) ([]domain.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Branch, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// GetBranch returns one branch.
func (m *MemoryCatalog) GetBranch(_ context.Context, id uuid.UUID) (domain.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	branch, ok := m.branches[id]
	if !ok {
		return domain.Branch{}, ErrNotFound
	}
	return branch, nil
}

// ListStores returns the store metadata keyed by id.
func (m *MemoryCatalog) ListStores(_ context.Context) (map[uuid.UUID]domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]domain.Store, len(m.stores))
	for id, s := range m.stores {
		out[id] = s
	}
	return out, nil
}

// UpsertBranch stores the branch.
func (m *MemoryCatalog) UpsertBranch(_ context.Context, branch domain.Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[branch.ID] = branch
	return nil
}

// UpsertStore stores the store metadata.
func (m *MemoryCatalog) UpsertStore(_ context.Context, store domain.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[store.ID] = store
	return nil
}
