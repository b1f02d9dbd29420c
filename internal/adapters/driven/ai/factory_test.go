package ai

import (
	"testing"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/config"
)

func TestNewEmbeddingService_NotConfigured(t *testing.T) {
	svc, err := NewEmbeddingService(config.EmbeddingConfig{}, nil)
	if err != nil {
		t.Errorf("expected no error without an API key, got %v", err)
	}
	if svc != nil {
		t.Error("expected nil service without an API key")
	}
}

func TestNewEmbeddingService_WrapsBreaker(t *testing.T) {
	svc, err := NewEmbeddingService(config.EmbeddingConfig{
		APIKey:     "sk-test",
		Deployment: "text-embedding-ada-002",
		Timeout:    10 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := svc.(*Breaker); !ok {
		t.Fatalf("expected *Breaker, got %T", svc)
	}
	if svc.Dimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", svc.Dimensions())
	}
	if svc.Model() != "text-embedding-ada-002" {
		t.Errorf("unexpected model %s", svc.Model())
	}
}

func TestNewEmbeddingService_AzureConfig(t *testing.T) {
	svc, err := NewEmbeddingService(config.EmbeddingConfig{
		Endpoint:   "https://example.openai.azure.com",
		APIKey:     "azure-key",
		Deployment: "text-embedding-ada-002",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc == nil {
		t.Fatal("expected a configured service")
	}
}
