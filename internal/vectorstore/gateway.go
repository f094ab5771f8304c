// Package vectorstore owns the lifecycle of the named vector collection:
// creation, upsert, similarity search, statistics and deletion.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
	"github.com/asepsopiyan/keris-lite/internal/config"
	"github.com/asepsopiyan/keris-lite/internal/model"
)

const DistanceCosine = "Cosine"

// overFetch is how many candidates are requested per wanted hit, so a hard
// score threshold does not starve the result set.
const overFetch = 2

type Gateway interface {
	// EnsureCollection creates the collection with the given dimension when
	// it does not exist. An existing collection is left untouched.
	EnsureCollection(ctx context.Context, dimension int) error
	// Upsert writes points, overwriting any with the same id, and returns
	// once the write is acknowledged.
	Upsert(ctx context.Context, points []model.Point) error
	// Search returns at most limit hits scoring above threshold, best
	// first. Filters are exact matches on payload fields, all of which must
	// hold.
	Search(ctx context.Context, vector []float32, limit int, threshold float64, filters map[string]any) ([]model.SearchHit, error)
	// CollectionStats returns nil and no error when the collection is absent.
	CollectionStats(ctx context.Context) (*model.CollectionInfo, error)
	// DeleteCollection reports whether a collection was deleted.
	DeleteCollection(ctx context.Context) bool
	Collection() string
}

func New(cfg *config.Config, logger *slog.Logger) (Gateway, error) {
	switch cfg.VectorStore.Type {
	case config.StoreQdrant:
		return NewQdrantStore(QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSeconds) * time.Second,
		}, logger), nil
	case config.StoreMemory:
		return NewMemoryStore(cfg.Qdrant.Collection), nil
	default:
		return nil, fmt.Errorf("unsupported vector store: %s", cfg.VectorStore.Type)
	}
}

// rankHits keeps hits scoring strictly above threshold, orders them by
// descending score and truncates to limit.
func rankHits(hits []model.SearchHit, limit int, threshold float64) []model.SearchHit {
	kept := make([]model.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score > threshold {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// batchDimension returns the shared vector length of points, or a
// DimensionMismatch when they disagree.
func batchDimension(op string, points []model.Point) (int, error) {
	dim := len(points[0].Vector)
	if dim == 0 {
		return 0, apperr.InvalidInput(op, fmt.Sprintf("point %s has an empty vector", points[0].ID))
	}
	for _, p := range points[1:] {
		if len(p.Vector) != dim {
			return 0, apperr.DimensionMismatch(op, dim, len(p.Vector))
		}
	}
	return dim, nil
}

func validateSearch(op string, vector []float32, limit int) error {
	if len(vector) == 0 {
		return apperr.InvalidInput(op, "query vector is empty")
	}
	if limit <= 0 {
		return apperr.InvalidInput(op, "limit must be positive")
	}
	return nil
}
