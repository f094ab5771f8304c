package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
)

type fakeBackend struct {
	identity string
	calls    atomic.Int32
	batches  [][]string
	mu       sync.Mutex
	embed    func(texts []string) ([][]float32, error)
}

func (f *fakeBackend) Identity() string { return f.identity }

func (f *fakeBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()
	return f.embed(texts)
}

func lengthVectors(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(strings.Count(t, "a")), 1}
	}
	return out, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]float32{}} }

func (c *mapCache) Get(_ context.Context, identity, text string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[identity+"|"+text]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, identity, text string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[identity+"|"+text] = vec
	return nil
}

func TestProviderEmptyInputSkipsBackend(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: lengthVectors}
	p := NewProvider(backend)

	vectors, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.EqualValues(t, 0, backend.calls.Load())
}

func TestProviderBatchesAndKeepsOrder(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: lengthVectors}
	p := NewProvider(backend, WithBatchSize(2))

	texts := []string{"a", "aa", "aaa", "aaaa", "aaaaa"}
	vectors, err := p.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	assert.EqualValues(t, 3, backend.calls.Load())
	for i := range texts {
		assert.Equal(t, float32(i+1), vectors[i][0])
	}
	assert.Equal(t, 3, p.Dimension())
}

func TestProviderDistinctVectorsPerText(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: lengthVectors}
	p := NewProvider(backend)

	vectors, err := p.Embed(context.Background(), []string{"banana", "kiwi", "apple pie"})
	require.NoError(t, err)
	assert.NotEqual(t, vectors[0], vectors[1])
	assert.NotEqual(t, vectors[1], vectors[2])
	assert.NotEqual(t, vectors[0], vectors[2])
}

func TestProviderEmptyVectorFailsWithIndex(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: func(texts []string) ([][]float32, error) {
		out, _ := lengthVectors(texts)
		out[2] = nil
		return out, nil
	}}
	p := NewProvider(backend)

	_, err := p.Embed(context.Background(), []string{"a", "b", "c", "d"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindEmbeddingFailed, appErr.Kind)
	assert.Equal(t, 2, appErr.Index)
}

func TestProviderShortResponseFails(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: func(texts []string) ([][]float32, error) {
		out, _ := lengthVectors(texts)
		return out[:1], nil
	}}

	_, err := NewProvider(backend).Embed(context.Background(), []string{"a", "b"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindEmbeddingFailed, appErr.Kind)
	assert.Equal(t, 1, appErr.Index)
}

func TestProviderDimensionDriftFails(t *testing.T) {
	dim := 3
	backend := &fakeBackend{identity: "fake/m", embed: func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = make([]float32, dim)
			out[i][0] = 1
		}
		return out, nil
	}}
	p := NewProvider(backend)

	_, err := p.Embed(context.Background(), []string{"first"})
	require.NoError(t, err)

	dim = 4
	_, err = p.Embed(context.Background(), []string{"second"})
	assert.ErrorIs(t, err, apperr.ErrEmbeddingFailed)
	assert.Equal(t, 3, p.Dimension())
}

func TestProviderRemapsBackendIndex(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: func(texts []string) ([][]float32, error) {
		for i, t := range texts {
			if t == "boom" {
				return nil, apperr.AtIndex(apperr.KindEmbeddingFailed, "fake", i, "bad text")
			}
		}
		return lengthVectors(texts)
	}}
	p := NewProvider(backend, WithBatchSize(2))

	_, err := p.Embed(context.Background(), []string{"a", "b", "c", "boom"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 3, appErr.Index)
}

func TestProviderWrapsUnclassifiedError(t *testing.T) {
	backend := &fakeBackend{identity: "fake/m", embed: func([]string) ([][]float32, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}

	_, err := NewProvider(backend).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)
}

func TestProviderCacheIsKeyedByIdentity(t *testing.T) {
	cache := newMapCache()
	first := &fakeBackend{identity: "fake/model-a", embed: lengthVectors}
	second := &fakeBackend{identity: "fake/model-b", embed: lengthVectors}

	_, err := NewProvider(first, WithCache(cache)).Embed(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	_, err = NewProvider(first, WithCache(cache)).Embed(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.calls.Load())

	_, err = NewProvider(second, WithCache(cache)).Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, second.calls.Load())
}

func TestProviderCachePartialHit(t *testing.T) {
	cache := newMapCache()
	backend := &fakeBackend{identity: "fake/m", embed: lengthVectors}
	p := NewProvider(backend, WithCache(cache))

	_, err := p.Embed(context.Background(), []string{"aa"})
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"a", "aa", "aaa"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []string{"a", "aaa"}, backend.batches[1])
	assert.Equal(t, float32(2), vectors[1][0])
}
