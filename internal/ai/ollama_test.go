package ai

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
)

// vectorFor derives a distinct 3-dim vector from a prompt.
func vectorFor(prompt string) []float64 {
	var sum int
	for _, r := range prompt {
		sum += int(r)
	}
	return []float64{float64(len(prompt)), float64(sum), 1}
}

func newOllamaServer(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(OllamaConfig{
		BaseURL:        srv.URL,
		ChatModel:      "qwen2.5:7b-instruct",
		EmbedModel:     "nomic-embed-text",
		MaxConcurrency: 8,
		Timeout:        5 * time.Second,
	})
}

func TestOllamaEmbedBatchPreservesOrder(t *testing.T) {
	var calls atomic.Int32
	client := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		calls.Add(1)
		// Finish out of order.
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vectorFor(req.Prompt)})
	})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh", "iiiiiiiii", "jjjjjjjjjj"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	assert.EqualValues(t, len(texts), calls.Load())

	for i, text := range texts {
		want := vectorFor(text)
		assert.Equal(t, float32(want[0]), vectors[i][0], "text %d", i)
		assert.Equal(t, float32(want[1]), vectors[i][1], "text %d", i)
	}
}

func TestOllamaEmbedServerErrorIsProviderUnavailable(t *testing.T) {
	client := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusInternalServerError)
	})

	_, err := client.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)
}

func TestOllamaEmbedMalformedResponseNamesIndex(t *testing.T) {
	client := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "bad" {
			_, _ = w.Write([]byte(`{"oops":true}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vectorFor(req.Prompt)})
	})

	_, err := client.EmbedBatch(context.Background(), []string{"ok", "bad", "ok too"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrEmbeddingFailed)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.Index)
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, EmbedModel: "m", ChatModel: "m"})

	_, err := client.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)

	_, err = client.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)
}

func TestOllamaGenerate(t *testing.T) {
	client := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string        `json:"model"`
			Messages []ChatMessage `json:"messages"`
			Stream   bool          `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "qwen2.5:7b-instruct", req.Model)
		assert.Len(t, req.Messages, 2)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "  jawaban  "},
		})
	})

	answer, err := client.Generate(context.Background(), []ChatMessage{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "q"},
	})
	require.NoError(t, err)
	assert.Equal(t, "jawaban", answer)
}

func TestOllamaGenerateEmpty(t *testing.T) {
	client := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""}}`))
	})

	_, err := client.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "q"}})
	assert.ErrorIs(t, err, apperr.ErrGenerationFailed)
}

func TestOllamaIdentity(t *testing.T) {
	client := NewOllamaClient(OllamaConfig{EmbedModel: "nomic-embed-text"})
	assert.Equal(t, "ollama/nomic-embed-text", client.Identity())
}
