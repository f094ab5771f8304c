package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
)

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	// MaxConcurrency bounds in-flight embedding calls for one batch.
	MaxConcurrency int
	// RequestsPerSecond paces outbound calls; zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// OllamaClient talks to a self-hosted Ollama server. Ollama has no batch
// embedding endpoint on /api/embeddings, so batches fan out one call per text.
type OllamaClient struct {
	httpClient     *http.Client
	baseURL        string
	chatModel      string
	embedModel     string
	maxConcurrency int
	limiter        *rate.Limiter
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &OllamaClient{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		chatModel:      cfg.ChatModel,
		embedModel:     cfg.EmbedModel,
		maxConcurrency: cfg.MaxConcurrency,
		limiter:        limiter,
	}
}

func (c *OllamaClient) Identity() string {
	return "ollama/" + c.embedModel
}

// EmbedBatch fans out one request per text. Each goroutine writes its own
// slot so the result order follows the input regardless of completion order.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(gctx); err != nil {
					return apperr.ProviderUnavailable("ollama.embed", err)
				}
			}
			vec, err := c.embedOne(gctx, i, text)
			if err != nil {
				return err
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *OllamaClient) embedOne(ctx context.Context, index int, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model":  c.embedModel,
		"prompt": text,
	}
	status, raw, err := c.post(ctx, "/api/embeddings", reqBody)
	if err != nil {
		return nil, apperr.ProviderUnavailable("ollama.embed", err)
	}
	if status >= 500 {
		return nil, apperr.ProviderUnavailable("ollama.embed", fmt.Errorf("status %d: %s", status, raw))
	}
	if status >= 300 {
		return nil, apperr.AtIndex(apperr.KindEmbeddingFailed, "ollama.embed", index, fmt.Sprintf("status %d: %s", status, raw))
	}

	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.AtIndex(apperr.KindEmbeddingFailed, "ollama.embed", index, "parse embedding json failed: "+err.Error())
	}
	if parsed.Embedding == nil {
		return nil, apperr.AtIndex(apperr.KindEmbeddingFailed, "ollama.embed", index, "response has no embedding")
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *OllamaClient) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    c.chatModel,
		"messages": messages,
		"stream":   false,
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.ProviderUnavailable("ollama.chat", err)
		}
	}
	status, raw, err := c.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return "", apperr.ProviderUnavailable("ollama.chat", err)
	}
	if status >= 500 {
		return "", apperr.ProviderUnavailable("ollama.chat", fmt.Errorf("status %d: %s", status, raw))
	}
	if status >= 300 {
		return "", apperr.New(apperr.KindGenerationFailed, "ollama.chat", fmt.Sprintf("status %d: %s", status, raw))
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.Wrap(apperr.KindGenerationFailed, "ollama.chat", fmt.Errorf("parse chat json failed: %w", err))
	}
	answer := strings.TrimSpace(parsed.Message.Content)
	if answer == "" {
		return "", apperr.New(apperr.KindGenerationFailed, "ollama.chat", "empty completion")
	}
	return answer, nil
}

// post sends a JSON request and returns the status and raw body. Only
// transport failures are returned as err.
func (c *OllamaClient) post(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response failed: %w", err)
	}
	return resp.StatusCode, raw, nil
}
