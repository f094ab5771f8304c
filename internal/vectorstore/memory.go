package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
	"github.com/asepsopiyan/keris-lite/internal/model"
)

// MemoryStore is an in-process Gateway using brute-force cosine similarity.
type MemoryStore struct {
	name string

	mu        sync.RWMutex
	exists    bool
	dimension int
	points    map[string]model.Point
	creates   int
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name}
}

func (m *MemoryStore) Collection() string {
	return m.name
}

func (m *MemoryStore) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return apperr.InvalidInput("memory.ensure", fmt.Sprintf("invalid dimension %d", dimension))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exists {
		return nil
	}
	m.exists = true
	m.dimension = dimension
	m.points = make(map[string]model.Point)
	m.creates++
	return nil
}

// CreateCount reports how many times the collection has been created.
func (m *MemoryStore) CreateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creates
}

func (m *MemoryStore) Upsert(_ context.Context, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := batchDimension("memory.upsert", points)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return apperr.StoreUnavailable("memory.upsert", fmt.Errorf("%s: %w", m.name, ErrCollectionNotFound))
	}
	if dim != m.dimension {
		return apperr.DimensionMismatch("memory.upsert", m.dimension, dim)
	}
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, limit int, threshold float64, filters map[string]any) ([]model.SearchHit, error) {
	if err := validateSearch("memory.search", vector, limit); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.exists {
		return []model.SearchHit{}, nil
	}
	if len(vector) != m.dimension {
		return nil, apperr.DimensionMismatch("memory.search", m.dimension, len(vector))
	}

	hits := make([]model.SearchHit, 0, len(m.points))
	for _, p := range m.points {
		if !matchesFilters(p.Payload, filters) {
			continue
		}
		hits = append(hits, model.SearchHit{
			ID:      p.ID,
			Score:   CosineSimilarity(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	return rankHits(hits, limit, threshold), nil
}

func (m *MemoryStore) CollectionStats(_ context.Context) (*model.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.exists {
		return nil, nil
	}
	return &model.CollectionInfo{
		Name:         m.name,
		Dimension:    m.dimension,
		Distance:     DistanceCosine,
		VectorsCount: int64(len(m.points)),
		PointsCount:  int64(len(m.points)),
		Status:       "green",
	}, nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return false
	}
	m.exists = false
	m.dimension = 0
	m.points = nil
	return true
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func matchesFilters(p model.Payload, filters map[string]any) bool {
	for key, want := range filters {
		var got any
		switch key {
		case "file":
			got = p.File
		case "idx":
			got = p.Idx
		case "text":
			got = p.Text
		case "chunk_size":
			got = p.ChunkSize
		default:
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
