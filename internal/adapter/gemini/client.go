package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
)

const systemInstruction = `You convert mortgage guideline text into data. Respond with a JSON array of objects with the keys "major_section", "subsection" and "summary".`

// Client generates rows with Gemini. Underlying genai clients are cached
// per API key so a settings change takes effect on the next call.
type Client struct {
	mu         sync.RWMutex
	clients    map[string]*genai.Client
	clientOpts []option.ClientOption
	log        *slog.Logger
}

func NewClient(logger *slog.Logger, opts ...option.ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		clients:    make(map[string]*genai.Client),
		clientOpts: opts,
		log:        logger,
	}
}

func (c *Client) Extract(ctx context.Context, chunk text.Chunk, prompt string, mc provider.ModelConfig) ([]schema.Row, error) {
	if mc.Credentials.APIKey == "" {
		return nil, provider.NewError(provider.Gemini, provider.KindAuth, "gemini api key not configured", nil)
	}

	gc, err := c.getClient(ctx, mc.Credentials.APIKey)
	if err != nil {
		return nil, provider.NewError(provider.Gemini, provider.KindAuth, "create client", err)
	}

	rid := uuid.New().String()
	start := time.Now()
	c.log.InfoContext(ctx, "llm.extract.start",
		"req_id", rid,
		"provider", provider.Gemini,
		"model", mc.Model,
		"chunk_index", chunk.Index,
		"prompt_len", len(prompt),
	)

	model := gc.GenerativeModel(mc.Model)
	model.SetTemperature(mc.Temperature)
	model.SetTopP(mc.TopP)
	if mc.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(mc.MaxOutputTokens)
	}
	model.StopSequences = mc.StopSequences
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		mapped := classify(ctx, err)
		c.log.ErrorContext(ctx, "llm.extract.http_error",
			"req_id", rid, "error", err, "kind", provider.KindOf(mapped), "elapsed_ms", time.Since(start).Milliseconds())
		return nil, mapped
	}

	content, err := responseText(res)
	if err != nil {
		c.log.WarnContext(ctx, "llm.extract.truncated", "req_id", rid, "error", err)
		return nil, err
	}

	rows, err := provider.Normalize(provider.Gemini, content)
	if err != nil {
		c.log.WarnContext(ctx, "llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	c.log.InfoContext(ctx, "llm.extract.ok",
		"req_id", rid, "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return rows, nil
}

// Close releases every cached client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, gc := range c.clients {
		if err := gc.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.clients, key)
	}
	return errors.Join(errs...)
}

func (c *Client) getClient(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	gc, ok := c.clients[key]
	c.mu.RUnlock()
	if ok {
		return gc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if gc, ok := c.clients[key]; ok {
		return gc, nil
	}

	opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(key))
	gc, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	c.clients[key] = gc
	return gc, nil
}

func responseText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 {
		return "", provider.NewError(provider.Gemini, provider.KindInvalidResponse, "no candidates in response", nil)
	}
	cand := res.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonMaxTokens:
		return "", provider.NewError(provider.Gemini, provider.KindInvalidResponse, "response truncated at max tokens", nil)
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "", provider.NewError(provider.Gemini, provider.KindInvalidResponse, fmt.Sprintf("response blocked: %v", cand.FinishReason), nil)
	}
	if cand.Content == nil {
		return "", provider.NewError(provider.Gemini, provider.KindInvalidResponse, "empty candidate content", nil)
	}

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewError(provider.Gemini, provider.KindTimeout, "deadline exceeded", err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return provider.NewError(provider.Gemini, provider.KindInvalidResponse, "response blocked", err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return provider.NewError(provider.Gemini, provider.KindTimeout, "transport error", err)
	}

	msg := strings.ToLower(gerr.Message)
	switch {
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return provider.NewError(provider.Gemini, provider.KindAuth, gerr.Message, err)
	case gerr.Code == http.StatusBadRequest && strings.Contains(msg, "api key not valid"):
		return provider.NewError(provider.Gemini, provider.KindAuth, gerr.Message, err)
	case gerr.Code == http.StatusTooManyRequests:
		if strings.Contains(msg, "billing") || strings.Contains(msg, "exceeded your current quota") {
			return provider.NewError(provider.Gemini, provider.KindQuotaExceeded, gerr.Message, err)
		}
		return provider.NewError(provider.Gemini, provider.KindRateLimited, gerr.Message, err)
	case gerr.Code >= 500:
		return provider.NewError(provider.Gemini, provider.KindTimeout, gerr.Message, err)
	default:
		return provider.NewError(provider.Gemini, provider.KindInvalidResponse, fmt.Sprintf("request rejected: status %d: %s", gerr.Code, gerr.Message), err)
	}
}
