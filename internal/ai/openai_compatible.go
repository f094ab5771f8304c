package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
)

type OpenAIConfig struct {
	BaseURL           string
	APIKey            string
	ChatModel         string
	EmbedModel        string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// OpenAICompatibleClient serves any endpoint speaking the OpenAI API,
// including Gemini's compatibility layer.
type OpenAICompatibleClient struct {
	client     *openai.Client
	chatModel  string
	embedModel string
	limiter    *rate.Limiter
}

func NewOpenAICompatibleClient(cfg OpenAIConfig) *OpenAICompatibleClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &OpenAICompatibleClient{
		client:     openai.NewClientWithConfig(clientConfig),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		limiter:    limiter,
	}
}

func (c *OpenAICompatibleClient) Identity() string {
	return "openai/" + c.embedModel
}

// EmbedBatch sends the whole batch in one request and places each returned
// vector by its reported index.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.wait(ctx, "openai.embed"); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, classifyOpenAIError("openai.embed", apperr.KindEmbeddingFailed, err)
	}

	results := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, apperr.New(apperr.KindEmbeddingFailed, "openai.embed",
				fmt.Sprintf("response index %d outside batch of %d", item.Index, len(texts)))
		}
		results[item.Index] = item.Embedding
	}
	return results, nil
}

func (c *OpenAICompatibleClient) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := c.wait(ctx, "openai.chat"); err != nil {
		return "", err
	}
	reqMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		reqMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: reqMessages,
	})
	if err != nil {
		return "", classifyOpenAIError("openai.chat", apperr.KindGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindGenerationFailed, "openai.chat", "empty llm choices")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", apperr.New(apperr.KindGenerationFailed, "openai.chat", "empty completion")
	}
	return answer, nil
}

func (c *OpenAICompatibleClient) wait(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.ProviderUnavailable(op, err)
	}
	return nil
}

// classifyOpenAIError maps server-side and transport failures to
// ProviderUnavailable and client-side rejections to the given kind.
func classifyOpenAIError(op string, rejected apperr.Kind, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 || status >= 500 || status == http.StatusTooManyRequests || status == http.StatusUnauthorized {
		return apperr.ProviderUnavailable(op, err)
	}
	return apperr.Wrap(rejected, op, err)
}
