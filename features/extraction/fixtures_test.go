package extraction_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lokeshec23/GC-AI/features/extraction"
	"github.com/lokeshec23/GC-AI/internal/document"
	"github.com/lokeshec23/GC-AI/internal/progress"
	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/session"
	"github.com/lokeshec23/GC-AI/internal/settings"
	"github.com/lokeshec23/GC-AI/internal/text"
	"github.com/lokeshec23/GC-AI/internal/worker"
)

type stubConfigs struct {
	err      error
	chunking *text.Policy
}

func (s stubConfigs) ModelConfig(ctx context.Context, req settings.Request) (provider.ModelConfig, error) {
	if s.err != nil {
		return provider.ModelConfig{}, s.err
	}
	chunking := text.Policy{Strategy: text.StrategyPages, PagesPerChunk: 1}
	if s.chunking != nil {
		chunking = *s.chunking
	}
	return provider.ModelConfig{
		Provider: req.Provider,
		Model:    req.Model,
		Chunking: chunking,
	}, nil
}

// stubLoader serves documents by upload name.
type stubLoader map[string]*document.Document

func (l stubLoader) Load(ctx context.Context, path, name string) (*document.Document, error) {
	doc, ok := l[name]
	if !ok {
		return nil, document.ErrUnsupportedFormat
	}
	return doc, nil
}

type recordingPublisher struct {
	events chan worker.JobEvent
}

func newPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan worker.JobEvent, 8)}
}

func (p *recordingPublisher) Publish(topic string, body []byte) error {
	var ev worker.JobEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}
	p.events <- ev
	return nil
}

func (p *recordingPublisher) next(t *testing.T) worker.JobEvent {
	t.Helper()
	select {
	case ev := <-p.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no job event published")
		return worker.JobEvent{}
	}
}

func pdfDoc(name string, pages ...string) *document.Document {
	return &document.Document{Name: name, Format: document.FormatPDF, Pages: pages}
}

// echoAdapter turns every chunk into one row keyed by its first line.
func echoAdapter(calls *atomic.Int32) provider.Adapter {
	return provider.AdapterFunc(func(ctx context.Context, c text.Chunk, prompt string, cfg provider.ModelConfig) ([]schema.Row, error) {
		if calls != nil {
			calls.Add(1)
		}
		content := strings.TrimSpace(c.Content)
		title, summary, _ := strings.Cut(content, ":")
		if strings.HasPrefix(content, "FAIL") {
			return nil, provider.NewError(cfg.Provider, provider.KindTimeout, "upstream slow", nil)
		}
		if strings.HasPrefix(content, "AUTH") {
			return nil, provider.NewError(cfg.Provider, provider.KindAuth, "invalid api key", nil)
		}
		return []schema.Row{{MajorSection: strings.TrimSpace(title), Summary: strings.TrimSpace(summary)}}, nil
	})
}

type fixture struct {
	service *extraction.Service
	store   *session.Store
	events  *recordingPublisher
}

func newFixture(t *testing.T, adapter provider.Adapter, loader stubLoader, configs stubConfigs) fixture {
	t.Helper()
	reg := provider.NewRegistry()
	reg.Register(provider.OpenAI, adapter)

	pool := worker.NewPool(
		worker.WithWorkers(2),
		worker.WithMaxAttempts(1),
		worker.WithRetryDelay(time.Millisecond, 2*time.Millisecond),
	)
	store := session.NewStore(time.Hour)
	events := newPublisher()

	svc := extraction.NewService(configs, reg, loader, pool, store, extraction.WithEvents(events))
	return fixture{service: svc, store: store, events: events}
}

func ingestRequest(name string) extraction.IngestRequest {
	return extraction.IngestRequest{
		File:     extraction.Upload{Name: name},
		Settings: settings.Request{Provider: provider.OpenAI, Model: "gpt-4o"},
	}
}

func waitTerminal(t *testing.T, sess *session.Session) progress.Update {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Progress.Snapshot().Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return sess.Progress.Snapshot()
}
