package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// MockCatalogStore is an in-memory implementation of CatalogStore for testing
type MockCatalogStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.ResourceCatalogEntry // key: URL
	runs    map[string]*domain.CatalogRun           // key: subject, latest only
}

// NewMockCatalogStore creates a new MockCatalogStore
func NewMockCatalogStore() *MockCatalogStore {
	return &MockCatalogStore{
		entries: make(map[string]*domain.ResourceCatalogEntry),
		runs:    make(map[string]*domain.CatalogRun),
	}
}

func (m *MockCatalogStore) SaveEntries(ctx context.Context, entries []*domain.ResourceCatalogEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, e := range entries {
		if existing, ok := m.entries[e.URL]; ok {
			// Re-discovery keeps the original discovery timestamp and
			// resets the entry to pending
			copied := *e
			copied.DiscoveredAt = existing.DiscoveredAt
			copied.ExtractedAt = nil
			m.entries[e.URL] = &copied
			continue
		}
		copied := *e
		m.entries[e.URL] = &copied
		added++
	}
	return added, nil
}

func (m *MockCatalogStore) ListPending(ctx context.Context, subject string, limit int) ([]*domain.ResourceCatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pending []*domain.ResourceCatalogEntry
	for _, e := range m.entries {
		if e.Subject == subject && e.ExtractedAt == nil {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].DiscoveredAt.Equal(pending[j].DiscoveredAt) {
			return pending[i].URL < pending[j].URL
		}
		return pending[i].DiscoveredAt.Before(pending[j].DiscoveredAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MockCatalogStore) MarkExtracted(ctx context.Context, url string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[url]
	if !ok {
		return domain.ErrNotFound
	}
	ts := at
	e.ExtractedAt = &ts
	return nil
}

func (m *MockCatalogStore) SaveRun(ctx context.Context, run *domain.CatalogRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.runs[run.Subject] = &copied
	return nil
}

func (m *MockCatalogStore) LastRun(ctx context.Context, subject string) (*domain.CatalogRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[subject]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return run, nil
}

func (m *MockCatalogStore) CountPending(ctx context.Context, subject string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.entries {
		if e.Subject == subject && e.ExtractedAt == nil {
			count++
		}
	}
	return count, nil
}

// Helper methods for testing

func (m *MockCatalogStore) Entry(url string) *domain.ResourceCatalogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[url]
}

func (m *MockCatalogStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*domain.ResourceCatalogEntry)
	m.runs = make(map[string]*domain.CatalogRun)
}
