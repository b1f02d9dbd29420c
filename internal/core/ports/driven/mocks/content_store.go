package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// MockContentStore is an in-memory implementation of ContentStore for testing
type MockContentStore struct {
	mu    sync.RWMutex
	items map[string]*domain.ContentItem

	indexEnsured bool
	failQuery    error
	failUpsert   error
	forcedQuery  []*domain.ContentItem
}

// NewMockContentStore creates a new MockContentStore
func NewMockContentStore() *MockContentStore {
	return &MockContentStore{
		items: make(map[string]*domain.ContentItem),
	}
}

func (m *MockContentStore) EnsureIndex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexEnsured = true
	return nil
}

func (m *MockContentStore) Upsert(ctx context.Context, item *domain.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	copied := *item
	m.items[item.ID] = &copied
	return nil
}

func (m *MockContentStore) Get(ctx context.Context, id string) (*domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (m *MockContentStore) Query(ctx context.Context, q domain.ContentQuery) ([]*domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failQuery != nil {
		return nil, m.failQuery
	}
	if m.forcedQuery != nil {
		return append([]*domain.ContentItem(nil), m.forcedQuery...), nil
	}

	var matched []*domain.ContentItem
	for _, item := range m.items {
		if matchesFilters(item, q.Filters) {
			matched = append(matched, item)
		}
	}

	if len(q.Embedding) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return cosine(matched[i].Embedding, q.Embedding) > cosine(matched[j].Embedding, q.Embedding)
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		})
	}

	topK := q.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	if len(matched) > topK {
		matched = matched[:topK]
	}
	return matched, nil
}

func (m *MockContentStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var missing []*domain.ContentItem
	for _, item := range m.items {
		if !item.HasEmbedding() {
			missing = append(missing, item)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool { return missing[i].ID < missing[j].ID })
	if limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}
	return missing, nil
}

func (m *MockContentStore) Count(ctx context.Context, subject string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if subject == "" {
		return len(m.items), nil
	}
	count := 0
	for _, item := range m.items {
		if item.Subject == subject {
			count++
		}
	}
	return count, nil
}

func (m *MockContentStore) HealthCheck(ctx context.Context) error {
	return nil
}

func matchesFilters(item *domain.ContentItem, f domain.ContentFilters) bool {
	if f.Subject != "" && item.Subject != f.Subject {
		return false
	}
	if f.ContentType != "" && item.ContentType != f.ContentType {
		return false
	}
	if len(f.Difficulty) > 0 {
		found := false
		for _, d := range f.Difficulty {
			if item.DifficultyLevel == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.GradeLevels) > 0 {
		found := false
		for _, g := range f.GradeLevels {
			if item.MatchesGrade(g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Helper methods for testing

func (m *MockContentStore) IndexEnsured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexEnsured
}

func (m *MockContentStore) SetQueryError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failQuery = err
}

// SetQueryResults makes Query return exactly these items, bypassing
// filtering and ranking. Useful for exercising caller-side handling of
// store responses.
func (m *MockContentStore) SetQueryResults(items ...*domain.ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedQuery = items
}

func (m *MockContentStore) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpsert = err
}

func (m *MockContentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*domain.ContentItem)
	m.failQuery = nil
	m.failUpsert = nil
	m.forcedQuery = nil
}
