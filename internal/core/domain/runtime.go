package domain

import "sync"

// RuntimeConfig tracks which services are available at runtime.
// Determined at startup and updated dynamically when the embedding
// service comes and goes. Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend string // "redis" or "postgres"

	// Dynamic capability flag (updated when the embedding service changes)
	embeddingAvailable bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend: queueBackend,
	}
}

// EmbeddingAvailable returns whether the embedding service is available
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// EffectiveRetrievalMode returns the best available retrieval mode
func (c *RuntimeConfig) EffectiveRetrievalMode() RetrievalMode {
	if c.EmbeddingAvailable() {
		return RetrievalModeSemantic
	}
	return RetrievalModeFilter
}
