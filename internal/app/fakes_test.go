package app

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"

	"github.com/asepsopiyan/keris-lite/internal/ai"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/vectorstore"
)

// hashEmbedder gives every distinct text its own 8-dim vector.
type hashEmbedder struct {
	calls    atomic.Int32
	fixed    map[string][]float32
	failText string
	failErr  error
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failErr != nil && (e.failText == "" || t == e.failText) {
			return nil, e.failErr
		}
		if v, ok := e.fixed[t]; ok {
			out[i] = v
			continue
		}
		out[i] = hashVector(t)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
	}
	return vec
}

type fakeGenerator struct {
	calls    atomic.Int32
	answer   string
	err      error
	mu       sync.Mutex
	messages []ai.ChatMessage
}

func (g *fakeGenerator) Generate(_ context.Context, messages []ai.ChatMessage) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.messages = messages
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

// recordingStore wraps a MemoryStore and keeps every upserted point.
type recordingStore struct {
	*vectorstore.MemoryStore
	ensures   atomic.Int32
	mu        sync.Mutex
	upserted  []model.Point
	failDel   bool
	searchErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: vectorstore.NewMemoryStore("keris_docs")}
}

func (s *recordingStore) EnsureCollection(ctx context.Context, dimension int) error {
	s.ensures.Add(1)
	return s.MemoryStore.EnsureCollection(ctx, dimension)
}

func (s *recordingStore) Upsert(ctx context.Context, points []model.Point) error {
	if err := s.MemoryStore.Upsert(ctx, points); err != nil {
		return err
	}
	s.mu.Lock()
	s.upserted = append(s.upserted, points...)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) Search(ctx context.Context, vector []float32, limit int, threshold float64, filters map[string]any) ([]model.SearchHit, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.MemoryStore.Search(ctx, vector, limit, threshold, filters)
}

func (s *recordingStore) DeleteCollection(ctx context.Context) bool {
	if s.failDel {
		return false
	}
	return s.MemoryStore.DeleteCollection(ctx)
}

func (s *recordingStore) pointCount(t interface{ Helper() }) int64 {
	t.Helper()
	info, _ := s.CollectionStats(context.Background())
	if info == nil {
		return 0
	}
	return info.PointsCount
}

type memoryLedger struct {
	mu      sync.Mutex
	records map[string]model.IngestRecord
	cleared int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: map[string]model.IngestRecord{}}
}

func (l *memoryLedger) Upsert(r *model.IngestRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[r.SourceFile] = *r
	return nil
}

func (l *memoryLedger) DeleteAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = map[string]model.IngestRecord{}
	l.cleared++
	return nil
}
