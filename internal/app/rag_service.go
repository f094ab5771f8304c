package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asepsopiyan/keris-lite/internal/ai"
	"github.com/asepsopiyan/keris-lite/internal/apperr"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/vectorstore"
)

const (
	defaultLimit = 5
	maxLimit     = 50
)

const DefaultNoResultsAnswer = "Maaf, saya tidak dapat menemukan informasi yang relevan untuk pertanyaan Anda. Silakan coba dengan pertanyaan yang berbeda atau pastikan dokumen sudah di-index."

type RetrievalOptions struct {
	Limit           int
	ScoreThreshold  float64
	Language        string
	NoResultsAnswer string
	Logger          *slog.Logger
}

type RAGService struct {
	embedder  Embedder
	store     vectorstore.Gateway
	generator ai.Generator
	opts      RetrievalOptions
	logger    *slog.Logger
}

func NewRAGService(embedder Embedder, store vectorstore.Gateway, generator ai.Generator, opts RetrievalOptions) *RAGService {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.NoResultsAnswer == "" {
		opts.NoResultsAnswer = DefaultNoResultsAnswer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGService{
		embedder:  embedder,
		store:     store,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// AskInput overrides the configured retrieval settings when its fields are set.
type AskInput struct {
	Question       string
	Limit          int
	ScoreThreshold *float64
	Filters        map[string]any
}

// Answer embeds the question, retrieves matching chunks and asks the
// generator to answer from them. With no chunk above the threshold it returns
// the fixed no-results answer without calling the generator.
func (s *RAGService) Answer(ctx context.Context, input AskInput) (*model.RetrievalResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperr.InvalidInput("answer", "question is empty")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = s.opts.Limit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	threshold := s.opts.ScoreThreshold
	if input.ScoreThreshold != nil {
		threshold = *input.ScoreThreshold
	}

	started := time.Now()
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}

	hits, err := s.store.Search(ctx, vectors[0], limit, threshold, input.Filters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		s.logger.Info("no relevant chunks", "threshold", threshold, "duration_ms", time.Since(started).Milliseconds())
		return &model.RetrievalResult{
			Answer: s.opts.NoResultsAnswer,
			Refs:   []model.Reference{},
		}, nil
	}

	messages := BuildMessages(question, BuildContext(hits), s.opts.Language)
	answer, err := s.generator.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	refs, meta := summarize(hits)
	s.logger.Info("question answered",
		"hits", meta.TotalResults,
		"top_score", meta.TopScore,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return &model.RetrievalResult{
		Answer:         answer,
		Refs:           refs,
		SearchMetadata: meta,
	}, nil
}

// BuildContext numbers each hit and carries its score, in the order given.
func BuildContext(hits []model.SearchHit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[#%d] Score: %.3f\n%s", i+1, h.Score, h.Payload.Text)
	}
	return strings.Join(blocks, "\n\n")
}

func BuildMessages(question, contextBlock, language string) []ai.ChatMessage {
	if language == "" {
		language = "the language of the question"
	}
	system := "You are an assistant that answers questions about a private document collection. " +
		"Answer only from the supplied context. If the context does not contain enough information, say so plainly instead of guessing."
	user := fmt.Sprintf(`CONTEXT (with relevance scores):
%s

QUESTION: %s

INSTRUCTIONS:
1. Answer based on the context above.
2. If the information is insufficient, say so honestly.
3. Keep the answer short and clear, written in %s.
4. Prefer passages with higher relevance scores.

ANSWER:`, contextBlock, question, language)

	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: system},
		{Role: ai.RoleUser, Content: user},
	}
}

func summarize(hits []model.SearchHit) ([]model.Reference, model.SearchMetadata) {
	refs := make([]model.Reference, len(hits))
	var sum, top float64
	for i, h := range hits {
		refs[i] = model.Reference{
			File:      h.Payload.File,
			Idx:       h.Payload.Idx,
			Score:     h.Score,
			ChunkSize: h.Payload.ChunkSize,
		}
		sum += h.Score
		if i == 0 || h.Score > top {
			top = h.Score
		}
	}
	return refs, model.SearchMetadata{
		TotalResults: len(hits),
		AvgScore:     sum / float64(len(hits)),
		TopScore:     top,
	}
}
