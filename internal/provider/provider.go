package provider

import (
	"context"

	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
)

const (
	OpenAI = "openai"
	Gemini = "gemini"
)

// Credentials are resolved from settings per request and never logged.
type Credentials struct {
	APIKey     string
	Endpoint   string
	Deployment string
}

// ModelConfig carries everything one job needs to talk to a model. It is
// built per request and owned by the job's session.
type ModelConfig struct {
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	Temperature     float32     `json:"temperature"`
	MaxOutputTokens int32       `json:"max_output_tokens"`
	TopP            float32     `json:"top_p"`
	StopSequences   []string    `json:"stop_sequences"`
	Chunking        text.Policy `json:"chunking"`
	Credentials     Credentials `json:"-"`
}

// Adapter is the uniform capability every model vendor implements.
// Implementations must be safe for concurrent use and keep no per-call
// state between calls.
type Adapter interface {
	Extract(ctx context.Context, chunk text.Chunk, prompt string, cfg ModelConfig) ([]schema.Row, error)
}

// AdapterFunc lets a plain function satisfy Adapter.
type AdapterFunc func(ctx context.Context, chunk text.Chunk, prompt string, cfg ModelConfig) ([]schema.Row, error)

func (f AdapterFunc) Extract(ctx context.Context, chunk text.Chunk, prompt string, cfg ModelConfig) ([]schema.Row, error) {
	return f(ctx, chunk, prompt, cfg)
}
