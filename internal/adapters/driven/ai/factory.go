package ai

import (
	"log/slog"

	"github.com/chenxi840221/personalized-learning-copilot/internal/config"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// NewEmbeddingService builds the embedding service from configuration,
// wrapped in a circuit breaker. It returns nil when no API key is
// configured, in which case indexing stores items without vectors and
// retrieval serves filter-only results.
func NewEmbeddingService(cfg config.EmbeddingConfig, logger *slog.Logger) (driven.EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}

	client, err := NewEmbeddingClient(Config{
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		Deployment: cfg.Deployment,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return NewBreaker(client, logger), nil
}
