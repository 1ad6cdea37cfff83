package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultAPIVersion = "2024-02-15-preview"
	maxStopSequences  = 4
)

type Config struct {
	// BaseURL is used when the request carries no Azure endpoint.
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
}

// Client talks to OpenAI or Azure OpenAI chat/completions. It holds no
// per-call state and is shared by all jobs.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, httpClient: hc, log: logger}
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *Client) Extract(ctx context.Context, chunk text.Chunk, prompt string, mc provider.ModelConfig) ([]schema.Row, error) {
	rid := uuid.New().String()
	start := time.Now()

	if mc.Credentials.APIKey == "" {
		return nil, provider.NewError(provider.OpenAI, provider.KindAuth, "openai api key not configured", nil)
	}

	c.log.InfoContext(ctx, "llm.extract.start",
		"req_id", rid,
		"provider", provider.OpenAI,
		"model", mc.Model,
		"chunk_index", chunk.Index,
		"prompt_len", len(prompt),
	)

	body := map[string]any{
		"model":           mc.Model,
		"temperature":     mc.Temperature,
		"top_p":           mc.TopP,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": `You convert mortgage guideline text into data. Respond with a JSON object of the form {"rows": [{"major_section": "", "subsection": "", "summary": ""}]}.`},
			{"role": "user", "content": prompt},
		},
	}
	if mc.MaxOutputTokens > 0 {
		body["max_tokens"] = mc.MaxOutputTokens
	}
	if stops := mc.StopSequences; len(stops) > 0 {
		if len(stops) > maxStopSequences {
			stops = stops[:maxStopSequences]
		}
		body["stop"] = stops
	}

	endpoint, header := c.route(mc)
	raw, err := c.post(ctx, endpoint, header, body)
	if err != nil {
		c.log.ErrorContext(ctx, "llm.extract.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, provider.NewError(provider.OpenAI, provider.KindInvalidResponse, "decode response", err)
	}
	if len(cc.Choices) == 0 {
		return nil, provider.NewError(provider.OpenAI, provider.KindInvalidResponse, "no choices in response", nil)
	}
	choice := cc.Choices[0]
	if choice.FinishReason == "length" {
		c.log.WarnContext(ctx, "llm.extract.truncated", "req_id", rid, "max_tokens", mc.MaxOutputTokens)
		return nil, provider.NewError(provider.OpenAI, provider.KindInvalidResponse, "response truncated at max tokens", nil)
	}

	rows, err := provider.Normalize(provider.OpenAI, choice.Message.Content)
	if err != nil {
		c.log.WarnContext(ctx, "llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	c.log.InfoContext(ctx, "llm.extract.ok",
		"req_id", rid, "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return rows, nil
}

// route picks Azure OpenAI when the credentials name an endpoint and a
// deployment, and the public API otherwise.
func (c *Client) route(mc provider.ModelConfig) (string, http.Header) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	cr := mc.Credentials
	if cr.Endpoint != "" && cr.Deployment != "" {
		h.Set("api-key", cr.APIKey)
		u := strings.TrimRight(cr.Endpoint, "/") + "/openai/deployments/" + url.PathEscape(cr.Deployment) +
			"/chat/completions?api-version=" + url.QueryEscape(c.cfg.APIVersion)
		return u, h
	}
	h.Set("Authorization", "Bearer "+cr.APIKey)
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions", h
}

func (c *Client) post(ctx context.Context, endpoint string, header http.Header, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = header

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return nil, provider.NewError(provider.OpenAI, provider.KindTimeout, "transport error", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, provider.NewError(provider.OpenAI, provider.KindTimeout, "read response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return buf.Bytes(), nil
	}
	return nil, classify(resp.StatusCode, buf.Bytes())
}

func classify(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := fmt.Sprintf("status %d", status)
	if ae.Error.Message != "" {
		msg += ": " + ae.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.NewError(provider.OpenAI, provider.KindAuth, msg, nil)
	case status == http.StatusTooManyRequests:
		if ae.Error.Type == "insufficient_quota" || fmt.Sprint(ae.Error.Code) == "insufficient_quota" {
			return provider.NewError(provider.OpenAI, provider.KindQuotaExceeded, msg, nil)
		}
		return provider.NewError(provider.OpenAI, provider.KindRateLimited, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusConflict || status >= 500:
		return provider.NewError(provider.OpenAI, provider.KindTimeout, msg, nil)
	default:
		return provider.NewError(provider.OpenAI, provider.KindInvalidResponse, "request rejected: "+msg, nil)
	}
}
