package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type EmbeddingConfig struct {
	Concurrency int
	Timeout     time.Duration
}

func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// EmbeddingGenerator turns chunk texts into vectors, one provider call per text.
type EmbeddingGenerator struct {
	client EmbeddingClient
	cfg    EmbeddingConfig
}

func NewEmbeddingGenerator(client EmbeddingClient, cfg EmbeddingConfig) *EmbeddingGenerator {
	def := DefaultEmbeddingConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &EmbeddingGenerator{client: client, cfg: cfg}
}

// EmbedBatch returns one embedding per text, in input order. Any failure
// cancels outstanding calls and fails the whole batch.
func (g *EmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingGenerator.EmbedBatch", telemetry.SpanAttributes{
		Operation: "embed",
		Count:     len(texts),
	})
	defer span.End()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)

	for i, text := range texts {
		eg.Go(func() error {
			vec, err := g.embed(egCtx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, domain.EmbeddingError("failed to generate embeddings", err)
	}
	return vectors, nil
}

// EmbedOne embeds a single query text.
func (g *EmbeddingGenerator) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.embed(ctx, text)
	if err != nil {
		return nil, domain.EmbeddingError("failed to generate embedding", err)
	}
	return vec, nil
}

func (g *EmbeddingGenerator) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.client.GenerateEmbedding(callCtx, text)
}
