package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// MockPlanStore is an in-memory implementation of PlanStore for testing
type MockPlanStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.PlanDocument
}

// NewMockPlanStore creates a new MockPlanStore
func NewMockPlanStore() *MockPlanStore {
	return &MockPlanStore{
		docs: make(map[string]*domain.PlanDocument),
	}
}

func (m *MockPlanStore) Save(ctx context.Context, doc *domain.PlanDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *MockPlanStore) Get(ctx context.Context, id string) (*domain.PlanDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *MockPlanStore) ListByStudent(ctx context.Context, studentID string) ([]*domain.PlanDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []*domain.PlanDocument
	for _, d := range m.docs {
		if d.StudentID == studentID {
			docs = append(docs, d)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// Helper methods for testing

func (m *MockPlanStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]*domain.PlanDocument)
}
