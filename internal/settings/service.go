package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/text"
)

var (
	ErrInvalidSettings     = errors.New("invalid settings")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrUnsupportedModel    = errors.New("unsupported model")
	ErrMissingCredentials  = errors.New("missing credentials")
)

const maskPrefix = "****"

type Settings struct {
	ID               int      `json:"-"`
	OpenAIAPIKey     string   `json:"openai_api_key"`
	OpenAIEndpoint   string   `json:"openai_endpoint"`
	OpenAIDeployment string   `json:"openai_deployment"`
	GeminiAPIKey     string   `json:"gemini_api_key"`
	Temperature      float32  `json:"temperature"`
	MaxOutputTokens  int32    `json:"max_output_tokens"`
	TopP             float32  `json:"top_p"`
	StopSequences    []string `json:"stop_sequences"`
	PagesPerChunk    int      `json:"pages_per_chunk"`
	ChunkSize        int      `json:"chunk_size"`
	ChunkOverlap     int      `json:"chunk_overlap"`
}

// Masked returns a copy safe to send to clients.
func (s Settings) Masked() Settings {
	s.OpenAIAPIKey = mask(s.OpenAIAPIKey)
	s.GeminiAPIKey = mask(s.GeminiAPIKey)
	if s.StopSequences == nil {
		s.StopSequences = []string{}
	}
	return s
}

func (s Settings) Validate() error {
	switch {
	case s.Temperature < 0 || s.Temperature > 2:
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidSettings)
	case s.TopP <= 0 || s.TopP > 1:
		return fmt.Errorf("%w: top_p must be in (0, 1]", ErrInvalidSettings)
	case s.MaxOutputTokens < 1:
		return fmt.Errorf("%w: max_output_tokens must be positive", ErrInvalidSettings)
	case s.PagesPerChunk < 1 || s.PagesPerChunk > 50:
		return fmt.Errorf("%w: pages_per_chunk must be between 1 and 50", ErrInvalidSettings)
	case s.ChunkSize < 1:
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidSettings)
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidSettings)
	case len(s.StopSequences) > 4:
		return fmt.Errorf("%w: at most 4 stop sequences", ErrInvalidSettings)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

// Update stores set. Key fields still carrying a masked value keep the
// stored key.
func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if isMasked(set.OpenAIAPIKey) || isMasked(set.GeminiAPIKey) {
		cur, err := s.repo.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if isMasked(set.OpenAIAPIKey) {
			set.OpenAIAPIKey = cur.OpenAIAPIKey
		}
		if isMasked(set.GeminiAPIKey) {
			set.GeminiAPIKey = cur.GeminiAPIKey
		}
	}
	return s.repo.Update(ctx, set)
}

// SeedCredentials copies environment-provided credentials into settings
// fields that are still empty.
func (s *Service) SeedCredentials(ctx context.Context, seed Settings) error {
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	changed := false
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&cur.OpenAIAPIKey, seed.OpenAIAPIKey)
	fill(&cur.OpenAIEndpoint, seed.OpenAIEndpoint)
	fill(&cur.OpenAIDeployment, seed.OpenAIDeployment)
	fill(&cur.GeminiAPIKey, seed.GeminiAPIKey)
	if !changed {
		return nil
	}
	return s.repo.Update(ctx, cur)
}

// Request is the per-job selection. Nil overrides fall back to settings.
type Request struct {
	Provider        string
	Model           string
	Strategy        text.Strategy
	Temperature     *float32
	MaxOutputTokens *int32
	TopP            *float32
	PagesPerChunk   *int
	ChunkSize       *int
	ChunkOverlap    *int
}

// ModelConfig resolves a request against persisted settings into the value
// a job carries for its whole life.
func (s *Service) ModelConfig(ctx context.Context, req Request) (provider.ModelConfig, error) {
	if req.Provider != provider.OpenAI && req.Provider != provider.Gemini {
		return provider.ModelConfig{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Provider)
	}
	if !provider.IsSupported(req.Provider, req.Model) {
		return provider.ModelConfig{}, fmt.Errorf("%w: %q for %s", ErrUnsupportedModel, req.Model, req.Provider)
	}

	cur, err := s.repo.Get(ctx)
	if err != nil {
		return provider.ModelConfig{}, fmt.Errorf("failed to get settings: %w", err)
	}
	eff := *cur
	if req.Temperature != nil {
		eff.Temperature = *req.Temperature
	}
	if req.MaxOutputTokens != nil {
		eff.MaxOutputTokens = *req.MaxOutputTokens
	}
	if req.TopP != nil {
		eff.TopP = *req.TopP
	}
	if req.PagesPerChunk != nil {
		eff.PagesPerChunk = *req.PagesPerChunk
	}
	if req.ChunkSize != nil {
		eff.ChunkSize = *req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		eff.ChunkOverlap = *req.ChunkOverlap
	}
	if err := eff.Validate(); err != nil {
		return provider.ModelConfig{}, err
	}

	var creds provider.Credentials
	switch req.Provider {
	case provider.OpenAI:
		creds = provider.Credentials{APIKey: eff.OpenAIAPIKey, Endpoint: eff.OpenAIEndpoint, Deployment: eff.OpenAIDeployment}
	case provider.Gemini:
		creds = provider.Credentials{APIKey: eff.GeminiAPIKey}
	}
	if creds.APIKey == "" {
		return provider.ModelConfig{}, fmt.Errorf("%w: %s api key not configured", ErrMissingCredentials, req.Provider)
	}

	chunking := text.Policy{
		Strategy:      req.Strategy,
		PagesPerChunk: eff.PagesPerChunk,
		ChunkSize:     eff.ChunkSize,
		Overlap:       eff.ChunkOverlap,
	}
	if l, ok := provider.Limits(req.Model); ok {
		eff.MaxOutputTokens, chunking = fitModel(l, eff.MaxOutputTokens, chunking)
	}

	return provider.ModelConfig{
		Provider:        req.Provider,
		Model:           req.Model,
		Temperature:     eff.Temperature,
		MaxOutputTokens: eff.MaxOutputTokens,
		TopP:            eff.TopP,
		StopSequences:   append([]string(nil), eff.StopSequences...),
		Chunking:        chunking,
		Credentials:     creds,
	}, nil
}

// fitModel bounds a job to the model's limits. Work units are capped at the
// recommended chunk size, and the output budget shrinks so one unit plus its
// answer fits the input window.
func fitModel(l provider.TokenLimits, maxOutput int32, p text.Policy) (int32, text.Policy) {
	if l.RecommendedChunk > 0 {
		p.MaxTokens = l.RecommendedChunk
		if p.ChunkSize > l.RecommendedChunk {
			p.ChunkSize = l.RecommendedChunk
			if p.Overlap >= p.ChunkSize {
				p.Overlap = p.ChunkSize / 10
			}
		}
	}
	if l.MaxOutput > 0 && int(maxOutput) > l.MaxOutput {
		maxOutput = int32(l.MaxOutput)
	}
	if room := l.MaxInput - p.MaxTokens; l.MaxInput > 0 && room > 0 && int(maxOutput) > room {
		maxOutput = int32(room)
	}
	return maxOutput, p
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return maskPrefix
	}
	return maskPrefix + key[len(key)-4:]
}

func isMasked(v string) bool {
	return strings.HasPrefix(v, maskPrefix)
}
