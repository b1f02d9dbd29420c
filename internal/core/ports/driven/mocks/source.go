package mocks

import (
	"context"
	"sync"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// MockSubjectSource serves scripted listing pages and resource pages
// for testing the indexer and extractor.
type MockSubjectSource struct {
	mu        sync.Mutex
	pages     map[string][]*driven.ListingPage // key: subject
	resources map[string]*driven.ResourcePage  // key: URL
	pageErrs  map[string]map[int]error         // subject -> page -> error
	fetchErrs map[string]error                 // URL -> error
	pageCalls int
}

// NewMockSubjectSource creates a new MockSubjectSource
func NewMockSubjectSource() *MockSubjectSource {
	return &MockSubjectSource{
		pages:     make(map[string][]*driven.ListingPage),
		resources: make(map[string]*driven.ResourcePage),
		pageErrs:  make(map[string]map[int]error),
		fetchErrs: make(map[string]error),
	}
}

func (m *MockSubjectSource) ListPage(ctx context.Context, subject string, page int) (*driven.ListingPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls++
	if errs, ok := m.pageErrs[subject]; ok {
		if err, ok := errs[page]; ok {
			return nil, err
		}
	}
	scripted := m.pages[subject]
	if page >= len(scripted) {
		return &driven.ListingPage{HasMore: false}, nil
	}
	return scripted[page], nil
}

func (m *MockSubjectSource) FetchResource(ctx context.Context, url string) (*driven.ResourcePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fetchErrs[url]; ok {
		return nil, err
	}
	page, ok := m.resources[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return page, nil
}

func (m *MockSubjectSource) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	subjects := make([]string, 0, len(m.pages))
	for s := range m.pages {
		subjects = append(subjects, s)
	}
	return subjects
}

// Helper methods for testing

func (m *MockSubjectSource) AddListingPage(subject string, page *driven.ListingPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[subject] = append(m.pages[subject], page)
}

func (m *MockSubjectSource) AddResource(page *driven.ResourcePage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[page.URL] = page
}

func (m *MockSubjectSource) SetPageError(subject string, page int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pageErrs[subject] == nil {
		m.pageErrs[subject] = make(map[int]error)
	}
	m.pageErrs[subject][page] = err
}

func (m *MockSubjectSource) SetFetchError(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrs[url] = err
}

func (m *MockSubjectSource) PageCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls
}

// MockClassifier returns a fixed classification for every page
type MockClassifier struct {
	Result *driven.Classification
}

// NewMockClassifier creates a MockClassifier with sensible defaults
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		Result: &driven.Classification{
			ContentType:     domain.ContentTypeArticle,
			DifficultyLevel: domain.DifficultyIntermediate,
			GradeLevel:      []int{7, 8, 9},
			DurationMinutes: 15,
		},
	}
}

func (m *MockClassifier) Classify(page *driven.ResourcePage, subject string) *driven.Classification {
	copied := *m.Result
	return &copied
}
