// Package ai provides the embedding adapter used to vectorise content
// and queries. It speaks both the OpenAI and Azure OpenAI embedding
// APIs and wraps the client in a circuit breaker so that an outage
// degrades retrieval to filter mode instead of failing requests.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Ensure EmbeddingClient implements EmbeddingService
var _ driven.EmbeddingService = (*EmbeddingClient)(nil)

const (
	defaultDeployment = "text-embedding-ada-002"
	defaultBaseURL    = "https://api.openai.com/v1"
	azureAPIVersion   = "2023-05-15"
)

// Dimensions per embedding model. Unknown models fall back to the
// index dimension so a misnamed deployment is caught by the index
// check rather than silently mismatching.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Config holds settings for the embedding client.
type Config struct {
	// Endpoint is the Azure OpenAI resource endpoint. Leave empty to
	// use the public OpenAI API.
	Endpoint string
	// APIKey authenticates requests.
	APIKey string
	// Deployment is the Azure deployment name, which doubles as the
	// model name against the public API.
	Deployment string
	// Timeout bounds each embedding request.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		Deployment: defaultDeployment,
		Timeout:    60 * time.Second,
	}
}

// EmbeddingClient calls the OpenAI (or Azure OpenAI) embeddings API.
type EmbeddingClient struct {
	endpoint   string
	apiKey     string
	deployment string
	dimensions int
	azure      bool
	client     *http.Client
}

// NewEmbeddingClient creates an embedding client from configuration.
// A non-empty Endpoint selects the Azure OpenAI request shape.
func NewEmbeddingClient(cfg Config) (*EmbeddingClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	if cfg.Deployment == "" {
		cfg.Deployment = defaultDeployment
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	azure := cfg.Endpoint != ""
	endpoint := cfg.Endpoint
	if !azure {
		endpoint = defaultBaseURL
	}

	dimensions, ok := modelDimensions[cfg.Deployment]
	if !ok {
		dimensions = domain.EmbeddingDimensions
	}

	return &EmbeddingClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		dimensions: dimensions,
		azure:      azure,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// embeddingRequest is the request body for the embeddings API
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// embeddingResponse is the response from the embeddings API
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Embed generates embeddings for multiple texts
func (e *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{
		Input:          texts,
		EncodingFormat: "float",
	}
	if !e.azure {
		reqBody.Model = e.deployment
	}

	resp, err := e.doRequest(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	// Order by index so results line up with inputs
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}

	return embeddings, nil
}

// EmbedQuery generates an embedding for a search query
func (e *EmbeddingClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *EmbeddingClient) Dimensions() int {
	return e.dimensions
}

// Model returns the deployment or model name being used
func (e *EmbeddingClient) Model() string {
	return e.deployment
}

// HealthCheck verifies the embedding service is available
func (e *EmbeddingClient) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding client
func (e *EmbeddingClient) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// requestURL builds the embeddings endpoint for the configured API shape.
func (e *EmbeddingClient) requestURL() string {
	if e.azure {
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			e.endpoint, e.deployment, azureAPIVersion)
	}
	return e.endpoint + "/embeddings"
}

// doRequest makes a request to the embeddings API. Transport failures
// and non-2xx statuses wrap ErrEmbeddingUnavailable so callers can
// degrade instead of failing hard.
func (e *EmbeddingClient) doRequest(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.requestURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s (type: %s, code: %s)",
			embResp.Error.Message, embResp.Error.Type, embResp.Error.Code)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: embedding API returned status %d",
			domain.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	return &embResp, nil
}
