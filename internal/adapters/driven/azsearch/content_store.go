// Package azsearch implements the content store on the Azure AI Search
// REST API: a filterable document index with vector search over the
// item embeddings.
package azsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ContentStore = (*ContentStore)(nil)

// ContentStore implements driven.ContentStore using Azure AI Search
type ContentStore struct {
	endpoint   string
	apiKey     string
	indexName  string
	apiVersion string
	httpClient *http.Client
}

// Config holds Azure AI Search connection configuration
type Config struct {
	// Endpoint is the search service URL (https://<name>.search.windows.net)
	Endpoint string

	// APIKey is the admin key used for both management and query calls
	APIKey string

	// IndexName is the content index name
	IndexName string

	// APIVersion selects the REST API version
	APIVersion string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(endpoint, apiKey string) Config {
	return Config{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		IndexName:  "educational-content",
		APIVersion: "2023-11-01",
		Timeout:    15 * time.Second,
	}
}

// NewContentStore creates a new Azure AI Search backed ContentStore
func NewContentStore(cfg Config) *ContentStore {
	if cfg.IndexName == "" {
		cfg.IndexName = "educational-content"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-11-01"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ContentStore{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		indexName:  cfg.IndexName,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// searchDocument is the wire shape of a content item in the index.
// has_embedding exists because vector fields are not filterable; it is
// what lets embedding-less items be found for later refresh.
type searchDocument struct {
	SearchAction    string    `json:"@search.action,omitempty"`
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ContentType     string    `json:"content_type"`
	Subject         string    `json:"subject"`
	Topics          []string  `json:"topics"`
	URL             string    `json:"url"`
	Source          string    `json:"source"`
	DifficultyLevel string    `json:"difficulty_level"`
	GradeLevel      []int     `json:"grade_level"`
	DurationMinutes int       `json:"duration_minutes"`
	Keywords        []string  `json:"keywords"`
	Embedding       []float32 `json:"embedding,omitempty"`
	HasEmbedding    bool      `json:"has_embedding"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toDocument(item *domain.ContentItem) searchDocument {
	doc := searchDocument{
		ID:              item.ID,
		Title:           item.Title,
		Description:     item.Description,
		ContentType:     string(item.ContentType),
		Subject:         item.Subject,
		Topics:          item.Topics,
		URL:             item.URL,
		Source:          item.Source,
		DifficultyLevel: string(item.DifficultyLevel),
		GradeLevel:      item.GradeLevel,
		DurationMinutes: item.DurationMinutes,
		Keywords:        item.Keywords,
		Embedding:       item.Embedding,
		HasEmbedding:    item.HasEmbedding(),
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
	if doc.Topics == nil {
		doc.Topics = []string{}
	}
	if doc.GradeLevel == nil {
		doc.GradeLevel = []int{}
	}
	if doc.Keywords == nil {
		doc.Keywords = []string{}
	}
	return doc
}

func (d *searchDocument) toItem() *domain.ContentItem {
	return &domain.ContentItem{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		ContentType:     domain.ContentType(d.ContentType),
		Subject:         d.Subject,
		Topics:          d.Topics,
		URL:             d.URL,
		Source:          d.Source,
		DifficultyLevel: domain.DifficultyLevel(d.DifficultyLevel),
		GradeLevel:      d.GradeLevel,
		DurationMinutes: d.DurationMinutes,
		Keywords:        d.Keywords,
		Embedding:       d.Embedding,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// EnsureIndex creates the index with the fixed schema if absent, and
// verifies the embedding dimension when the index already exists.
func (s *ContentStore) EnsureIndex(ctx context.Context) error {
	existing, status, err := s.getIndex(ctx)
	if err != nil {
		return err
	}

	if status == http.StatusNotFound {
		return s.createIndex(ctx)
	}

	// Index exists; a different embedding dimension means every stored
	// vector is unusable, so fail loudly rather than index garbage.
	for _, field := range existing.Fields {
		if field.Name == "embedding" && field.Dimensions != 0 && field.Dimensions != domain.EmbeddingDimensions {
			return fmt.Errorf("index %s embedding dimension is %d, want %d",
				s.indexName, field.Dimensions, domain.EmbeddingDimensions)
		}
	}
	return nil
}

type indexField struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type indexDefinition struct {
	Fields []indexField `json:"fields"`
}

func (s *ContentStore) getIndex(ctx context.Context) (*indexDefinition, int, error) {
	u := fmt.Sprintf("%s/indexes('%s')?api-version=%s", s.endpoint, s.indexName, s.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, http.StatusNotFound, nil
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("get index failed: %s - %s", resp.Status, string(respBody))
	}

	var def indexDefinition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		return nil, resp.StatusCode, err
	}
	return &def, resp.StatusCode, nil
}

func (s *ContentStore) createIndex(ctx context.Context) error {
	schema := map[string]any{
		"name": s.indexName,
		"fields": []map[string]any{
			{"name": "id", "type": "Edm.String", "key": true, "filterable": true},
			{"name": "title", "type": "Edm.String", "searchable": true},
			{"name": "description", "type": "Edm.String", "searchable": true},
			{"name": "content_type", "type": "Edm.String", "filterable": true},
			{"name": "subject", "type": "Edm.String", "filterable": true},
			{"name": "topics", "type": "Collection(Edm.String)", "filterable": true, "searchable": true},
			{"name": "url", "type": "Edm.String"},
			{"name": "source", "type": "Edm.String", "filterable": true},
			{"name": "difficulty_level", "type": "Edm.String", "filterable": true},
			{"name": "grade_level", "type": "Collection(Edm.Int32)", "filterable": true},
			{"name": "duration_minutes", "type": "Edm.Int32", "filterable": true},
			{"name": "keywords", "type": "Collection(Edm.String)", "searchable": true},
			{
				"name":                "embedding",
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          domain.EmbeddingDimensions,
				"vectorSearchProfile": "embedding-profile",
			},
			{"name": "has_embedding", "type": "Edm.Boolean", "filterable": true},
			{"name": "created_at", "type": "Edm.DateTimeOffset", "filterable": true, "sortable": true},
			{"name": "updated_at", "type": "Edm.DateTimeOffset", "filterable": true, "sortable": true},
		},
		"vectorSearch": map[string]any{
			"algorithms": []map[string]any{
				{"name": "embedding-hnsw", "kind": "hnsw"},
			},
			"profiles": []map[string]any{
				{"name": "embedding-profile", "algorithm": "embedding-hnsw"},
			},
		},
	}

	body, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/indexes('%s')?api-version=%s", s.endpoint, s.indexName, s.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create index failed: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// Upsert creates or fully replaces a content item keyed by ID.
// The upload action replaces the whole document, so stale fields from a
// previous extraction never survive a re-crawl.
func (s *ContentStore) Upsert(ctx context.Context, item *domain.ContentItem) error {
	doc := toDocument(item)
	doc.SearchAction = "upload"

	batch := map[string]any{"value": []searchDocument{doc}}
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/indexes('%s')/docs/search.index?api-version=%s", s.endpoint, s.indexName, s.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		if fields := undeclaredFields(respBody); len(fields) > 0 {
			return &domain.SchemaMismatchError{Fields: fields}
		}
		return fmt.Errorf("upsert failed: %s - %s", resp.Status, string(respBody))
	}

	// The batch endpoint reports per-document status inside a 200
	var result struct {
		Value []struct {
			Key          string `json:"key"`
			Status       bool   `json:"status"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"value"`
	}
	if err := json.Unmarshal(respBody, &result); err == nil {
		for _, v := range result.Value {
			if !v.Status {
				return fmt.Errorf("upsert %s failed: %s", v.Key, v.ErrorMessage)
			}
		}
	}

	return nil
}

// undeclaredFields extracts field names from the service's "property
// does not exist" error, if that is what the response says.
func undeclaredFields(body []byte) []string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	msg := parsed.Error.Message
	const marker = "The property '"
	var fields []string
	for {
		i := strings.Index(msg, marker)
		if i < 0 {
			break
		}
		msg = msg[i+len(marker):]
		j := strings.Index(msg, "'")
		if j < 0 {
			break
		}
		fields = append(fields, msg[:j])
	}
	return fields
}

// Get retrieves a content item by ID
func (s *ContentStore) Get(ctx context.Context, id string) (*domain.ContentItem, error) {
	u := fmt.Sprintf("%s/indexes('%s')/docs('%s')?api-version=%s",
		s.endpoint, s.indexName, url.PathEscape(id), s.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get document failed: %s - %s", resp.Status, string(respBody))
	}

	var doc searchDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toItem(), nil
}

// Query returns a ranked sequence of items matching the filters. With
// an embedding the ranking is vector similarity; without one it falls
// back to updated_at descending.
func (s *ContentStore) Query(ctx context.Context, q domain.ContentQuery) ([]*domain.ContentItem, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	if topK > domain.MaxTopK {
		topK = domain.MaxTopK
	}

	searchReq := map[string]any{
		"top":   topK,
		"count": false,
	}

	if filter := buildFilter(q.Filters); filter != "" {
		searchReq["filter"] = filter
	}

	if len(q.Embedding) > 0 {
		searchReq["vectorQueries"] = []map[string]any{
			{
				"kind":   "vector",
				"vector": q.Embedding,
				"fields": "embedding",
				"k":      topK,
			},
		}
	} else {
		searchReq["orderby"] = "updated_at desc"
		if q.Text != "" {
			searchReq["search"] = q.Text
			// Relevance over recency once there is a text query
			delete(searchReq, "orderby")
		}
	}

	docs, err := s.search(ctx, searchReq)
	if err != nil {
		return nil, err
	}

	items := make([]*domain.ContentItem, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toItem())
	}
	return items, nil
}

// ListMissingEmbeddings returns items stored without an embedding
func (s *ContentStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.ContentItem, error) {
	if limit <= 0 {
		limit = domain.MaxTopK
	}

	searchReq := map[string]any{
		"filter":  "has_embedding eq false",
		"orderby": "updated_at asc",
		"top":     limit,
	}

	docs, err := s.search(ctx, searchReq)
	if err != nil {
		return nil, err
	}

	items := make([]*domain.ContentItem, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toItem())
	}
	return items, nil
}

// Count returns the number of indexed items, optionally per subject
func (s *ContentStore) Count(ctx context.Context, subject string) (int, error) {
	searchReq := map[string]any{
		"top":   0,
		"count": true,
	}
	if subject != "" {
		searchReq["filter"] = fmt.Sprintf("subject eq '%s'", escapeODataString(subject))
	}

	body, err := json.Marshal(searchReq)
	if err != nil {
		return 0, err
	}

	resp, err := s.postSearch(ctx, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("count query failed: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Count int `json:"@odata.count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// HealthCheck verifies the index backend is reachable
func (s *ContentStore) HealthCheck(ctx context.Context) error {
	_, status, err := s.getIndex(ctx)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		// Reachable; the index will be created on first use
		return nil
	}
	return nil
}

func (s *ContentStore) search(ctx context.Context, searchReq map[string]any) ([]searchDocument, error) {
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, err
	}

	resp, err := s.postSearch(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search failed: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Value []searchDocument `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (s *ContentStore) postSearch(ctx context.Context, body []byte) (*http.Response, error) {
	u := fmt.Sprintf("%s/indexes('%s')/docs/search.post.search?api-version=%s",
		s.endpoint, s.indexName, s.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return resp, nil
}

// buildFilter converts exact-match filters to an OData expression
func buildFilter(f domain.ContentFilters) string {
	var parts []string

	if f.Subject != "" {
		parts = append(parts, fmt.Sprintf("subject eq '%s'", escapeODataString(f.Subject)))
	}
	if f.ContentType != "" {
		parts = append(parts, fmt.Sprintf("content_type eq '%s'", escapeODataString(string(f.ContentType))))
	}
	if len(f.Difficulty) > 0 {
		levels := make([]string, len(f.Difficulty))
		for i, d := range f.Difficulty {
			levels[i] = fmt.Sprintf("difficulty_level eq '%s'", escapeODataString(string(d)))
		}
		parts = append(parts, "("+strings.Join(levels, " or ")+")")
	}
	if len(f.GradeLevels) > 0 {
		grades := make([]string, len(f.GradeLevels))
		for i, g := range f.GradeLevels {
			grades[i] = fmt.Sprintf("grade_level/any(g: g eq %d)", g)
		}
		parts = append(parts, "("+strings.Join(grades, " or ")+")")
	}

	return strings.Join(parts, " and ")
}

// escapeODataString doubles single quotes per OData string literal rules
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
