package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Ensure Breaker implements EmbeddingService
var _ driven.EmbeddingService = (*Breaker)(nil)

// Breaker wraps an EmbeddingService with a circuit breaker. While the
// circuit is open every call returns ErrEmbeddingUnavailable, which
// retrieval and refresh already treat as a signal to degrade, so an
// embedding outage never blocks the pipeline or query serving.
type Breaker struct {
	inner  driven.EmbeddingService
	cb     *gobreaker.CircuitBreaker[[][]float32]
	logger *slog.Logger
}

// NewBreaker wraps the given embedding service. The circuit opens
// after three consecutive failures and probes again after 30 seconds.
func NewBreaker(inner driven.EmbeddingService, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	return &Breaker{
		inner:  inner,
		cb:     cb,
		logger: logger,
	}
}

// Embed generates embeddings through the circuit breaker
func (b *Breaker) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.cb.Execute(func() ([][]float32, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		return nil, b.mapError(err)
	}
	return result, nil
}

// EmbedQuery generates a query embedding through the circuit breaker
func (b *Breaker) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := b.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return embeddings[0], nil
}

// Dimensions returns the wrapped service's embedding dimension size
func (b *Breaker) Dimensions() int {
	return b.inner.Dimensions()
}

// Model returns the wrapped service's model name
func (b *Breaker) Model() string {
	return b.inner.Model()
}

// HealthCheck reports unhealthy while the circuit is open
func (b *Breaker) HealthCheck(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit open", domain.ErrEmbeddingUnavailable)
	}
	return b.inner.HealthCheck(ctx)
}

// Close releases resources held by the wrapped service
func (b *Breaker) Close() error {
	return b.inner.Close()
}

// mapError translates breaker rejections into the domain sentinel.
func (b *Breaker) mapError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", domain.ErrEmbeddingUnavailable)
	}
	return err
}
