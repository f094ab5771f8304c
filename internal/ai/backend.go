package ai

import "context"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmbeddingBackend turns texts into vectors. Implementations return exactly
// one entry per input, in input order. An entry may be empty; the Provider
// reports it as a failure for that index.
type EmbeddingBackend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Identity names the backend and model, e.g. "ollama/nomic-embed-text".
	// Vectors from different identities are never mixed.
	Identity() string
}

// Generator produces a completion for an ordered list of role-tagged messages.
type Generator interface {
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
}
