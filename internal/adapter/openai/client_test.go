package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokeshec23/GC-AI/internal/adapter/openai"
	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/text"
	"github.com/lokeshec23/GC-AI/internal/worker"
)

func completion(content, finish string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"finish_reason": finish, "message": map[string]any{"content": content}},
		},
	}
}

func modelConfig(ts *httptest.Server) provider.ModelConfig {
	return provider.ModelConfig{
		Provider:        provider.OpenAI,
		Model:           "gpt-4o",
		Temperature:     0.5,
		TopP:            1,
		MaxOutputTokens: 1024,
		StopSequences:   []string{"a", "b", "c", "d", "e"},
		Credentials:     provider.Credentials{APIKey: "sk-test"},
	}
}

func TestClient_Extract_Success(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(completion(`{"rows":[{"major_section":"Credit Score","subsection":"","summary":"min FICO 620"}]}`, "stop"))
	}))
	defer ts.Close()

	c := openai.New(openai.Config{BaseURL: ts.URL}, nil)
	rows, err := c.Extract(context.Background(), text.Chunk{Index: 2}, "prompt", modelConfig(ts))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Credit Score", rows[0].MajorSection)
	assert.Equal(t, "min FICO 620", rows[0].Summary)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, float64(1024), got["max_tokens"])
	assert.Len(t, got["stop"], 4)
}

func TestClient_Extract_Azure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt4o-prod/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "sk-azure", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(completion(`{"rows":[]}`, "stop"))
	}))
	defer ts.Close()

	mc := modelConfig(ts)
	mc.Credentials = provider.Credentials{APIKey: "sk-azure", Endpoint: ts.URL + "/", Deployment: "gpt4o-prod"}

	rows, err := openai.New(openai.Config{}, nil).Extract(context.Background(), text.Chunk{}, "p", mc)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClient_Extract_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   provider.ErrorKind
	}{
		{"Unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`, provider.KindAuth},
		{"Forbidden", http.StatusForbidden, `{}`, provider.KindAuth},
		{"Quota", http.StatusTooManyRequests, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`, provider.KindQuotaExceeded},
		{"RateLimit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, provider.KindRateLimited},
		{"ServerError", http.StatusBadGateway, `oops`, provider.KindTimeout},
		{"BadRequest", http.StatusBadRequest, `{"error":{"message":"context length exceeded"}}`, provider.KindInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := openai.New(openai.Config{BaseURL: ts.URL}, nil).Extract(context.Background(), text.Chunk{}, "p", modelConfig(ts))
			assert.Equal(t, tt.want, provider.KindOf(err))
		})
	}
}

func TestClient_Extract_InvalidContent(t *testing.T) {
	t.Run("NotJSON", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(completion("Sorry, I cannot help with that.", "stop"))
		}))
		defer ts.Close()

		_, err := openai.New(openai.Config{BaseURL: ts.URL}, nil).Extract(context.Background(), text.Chunk{}, "p", modelConfig(ts))
		assert.Equal(t, provider.KindInvalidResponse, provider.KindOf(err))
	})

	t.Run("Truncated", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(completion(`{"rows":[{"major_section":"A"`, "length"))
		}))
		defer ts.Close()

		_, err := openai.New(openai.Config{BaseURL: ts.URL}, nil).Extract(context.Background(), text.Chunk{}, "p", modelConfig(ts))
		assert.Equal(t, provider.KindInvalidResponse, provider.KindOf(err))
		assert.Contains(t, err.Error(), "truncated")
	})
}

func TestClient_Extract_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"ScalarList", `[1, 2, 3]`},
		{"StringList", `{"rows":["not","rows"]}`},
		{"UnknownKeys", `{"rows":[{"foo":"bar","baz":"qux"}]}`},
		{"ErrorEnvelope", `{"error":{"message":"The model is overloaded","code":503}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(completion(tt.content, "stop"))
			}))
			defer ts.Close()

			rows, err := openai.New(openai.Config{BaseURL: ts.URL}, nil).Extract(context.Background(), text.Chunk{}, "p", modelConfig(ts))
			assert.Nil(t, rows)
			assert.Equal(t, provider.KindInvalidResponse, provider.KindOf(err))
			assert.ErrorIs(t, err, provider.ErrSchemaMismatch)
		})
	}
}

func TestClient_Extract_SchemaMismatchTriggersCorrection(t *testing.T) {
	var mu sync.Mutex
	var prompts []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		user := req.Messages[len(req.Messages)-1].Content

		mu.Lock()
		prompts = append(prompts, user)
		mu.Unlock()

		if strings.Contains(user, "### CORRECTION") {
			json.NewEncoder(w).Encode(completion(`{"rows":[{"major_section":"Assets","subsection":"Reserves","summary":"6 months PITI"}]}`, "stop"))
			return
		}
		json.NewEncoder(w).Encode(completion(`["Assets","6 months PITI"]`, "stop"))
	}))
	defer ts.Close()

	job := worker.Job{
		SessionID: "s-1",
		Adapter:   openai.New(openai.Config{BaseURL: ts.URL}, nil),
		Chunks:    []text.Chunk{{Index: 0, Content: "Reserves: 6 months PITI"}},
		Prompt:    "Extract rules",
		Config:    modelConfig(ts),
	}
	pool := worker.NewPool(worker.WithMaxAttempts(3), worker.WithRetryDelay(time.Millisecond, 2*time.Millisecond))

	var results []worker.UnitResult
	err := pool.Run(context.Background(), job, func(r worker.UnitResult) { results = append(results, r) })
	require.NoError(t, err)

	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "### CORRECTION")
	assert.Contains(t, prompts[1], "### CORRECTION")
	require.Len(t, results, 1)
	assert.Equal(t, worker.StatusOK, results[0].Status)
	assert.Equal(t, 2, results[0].Attempts)
	assert.Equal(t, "6 months PITI", results[0].Rows[0].Summary)
}

func TestClient_Extract_MissingKey(t *testing.T) {
	_, err := openai.New(openai.Config{}, nil).Extract(context.Background(), text.Chunk{}, "p", provider.ModelConfig{Model: "gpt-4o"})
	assert.Equal(t, provider.KindAuth, provider.KindOf(err))
}

func TestClient_Extract_CallTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := openai.New(openai.Config{BaseURL: ts.URL}, nil).Extract(ctx, text.Chunk{}, "p", modelConfig(ts))
	assert.Equal(t, provider.KindTimeout, provider.KindOf(err))
}
