package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
)

// EmbeddingCache stores vectors keyed by backend identity and text.
type EmbeddingCache interface {
	Get(ctx context.Context, identity, text string) ([]float32, bool, error)
	Set(ctx context.Context, identity, text string, vector []float32) error
}

// Provider is the embedding entry point used by ingestion and retrieval. It
// batches requests, validates every vector and pins the vector dimension to
// the first one observed.
type Provider struct {
	backend   EmbeddingBackend
	cache     EmbeddingCache
	batchSize int
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	dimension int
}

type ProviderOption func(*Provider)

func WithCache(cache EmbeddingCache) ProviderOption {
	return func(p *Provider) { p.cache = cache }
}

func WithBatchSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

func NewProvider(backend EmbeddingBackend, opts ...ProviderOption) *Provider {
	p := &Provider{
		backend:   backend,
		batchSize: 64,
		timeout:   60 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Identity() string {
	return p.backend.Identity()
}

// Dimension reports the vector dimension seen so far, or 0 before the first
// successful call.
func (p *Provider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimension
}

// Embed returns one vector per text in input order. An empty input returns
// an empty result without contacting the backend.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	identity := p.backend.Identity()
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := p.cached(ctx, identity, text); ok {
			if err := p.accept(i, vec); err != nil {
				return nil, err
			}
			results[i] = vec
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		positions := pending[start:end]
		batch := make([]string, len(positions))
		for j, pos := range positions {
			batch[j] = texts[pos]
		}

		vectors, err := p.embedBatch(ctx, batch)
		if err != nil {
			return nil, remapIndex(err, positions)
		}
		if len(vectors) != len(batch) {
			missing := positions[min(len(vectors), len(batch)-1)]
			return nil, apperr.AtIndex(apperr.KindEmbeddingFailed, "embed", missing,
				fmt.Sprintf("backend returned %d vectors for %d inputs", len(vectors), len(batch)))
		}
		for j, vec := range vectors {
			pos := positions[j]
			if err := p.accept(pos, vec); err != nil {
				return nil, err
			}
			results[pos] = vec
			p.store(ctx, identity, texts[pos], vec)
		}
	}
	return results, nil
}

func (p *Provider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	vectors, err := p.backend.EmbedBatch(callCtx, batch)
	if err == nil {
		return vectors, nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return nil, err
	}
	return nil, apperr.ProviderUnavailable("embed", err)
}

// accept rejects empty vectors and vectors whose length differs from the
// dimension already established by this provider.
func (p *Provider) accept(index int, vec []float32) error {
	if len(vec) == 0 {
		return apperr.AtIndex(apperr.KindEmbeddingFailed, "embed", index, "empty vector")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dimension == 0 {
		p.dimension = len(vec)
		return nil
	}
	if len(vec) != p.dimension {
		return apperr.AtIndex(apperr.KindEmbeddingFailed, "embed", index,
			fmt.Sprintf("vector dimension %d differs from %d", len(vec), p.dimension))
	}
	return nil
}

func (p *Provider) cached(ctx context.Context, identity, text string) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}
	vec, ok, err := p.cache.Get(ctx, identity, text)
	if err != nil {
		p.logger.Warn("embedding cache read failed", "identity", identity, "error", err)
		return nil, false
	}
	return vec, ok && len(vec) > 0
}

func (p *Provider) store(ctx context.Context, identity, text string, vec []float32) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, identity, text, vec); err != nil {
		p.logger.Warn("embedding cache write failed", "identity", identity, "error", err)
	}
}

// remapIndex translates a batch-relative index in err to the caller's input
// position.
func remapIndex(err error, positions []int) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Index < 0 || appErr.Index >= len(positions) {
		return err
	}
	remapped := *appErr
	remapped.Index = positions[appErr.Index]
	return &remapped
}
