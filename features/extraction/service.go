package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lokeshec23/GC-AI/internal/config"
	"github.com/lokeshec23/GC-AI/internal/document"
	"github.com/lokeshec23/GC-AI/internal/export"
	"github.com/lokeshec23/GC-AI/internal/merge"
	"github.com/lokeshec23/GC-AI/internal/metrics"
	"github.com/lokeshec23/GC-AI/internal/middleware"
	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/session"
	"github.com/lokeshec23/GC-AI/internal/settings"
	"github.com/lokeshec23/GC-AI/internal/text"
	"github.com/lokeshec23/GC-AI/internal/worker"
)

type ConfigResolver interface {
	ModelConfig(ctx context.Context, req settings.Request) (provider.ModelConfig, error)
}

type AdapterResolver interface {
	Get(name string) (provider.Adapter, error)
}

type DocumentLoader interface {
	Load(ctx context.Context, path, name string) (*document.Document, error)
}

type Runner interface {
	Run(ctx context.Context, job worker.Job, sink func(worker.UnitResult)) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Upload is a client file already written to local disk.
type Upload struct {
	Path string
	Name string
}

type IngestRequest struct {
	File     Upload
	Prompt   string
	Settings settings.Request
}

type CompareRequest struct {
	First    Upload
	Second   Upload
	Prompt   string
	Settings settings.Request
}

// input is a loaded document and its work units. Structured documents carry
// rows already and have no chunks.
type input struct {
	doc    *document.Document
	chunks []text.Chunk
}

type Service struct {
	configs  ConfigResolver
	adapters AdapterResolver
	loader   DocumentLoader
	pool     Runner
	store    *session.Store
	events   EventPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

// WithEvents publishes a JobEvent for every finished job.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(configs ConfigResolver, adapters AdapterResolver, loader DocumentLoader, pool Runner, store *session.Store, opts ...Option) *Service {
	s := &Service{
		configs:  configs,
		adapters: adapters,
		loader:   loader,
		pool:     pool,
		store:    store,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest validates and chunks the upload, then runs extraction in the
// background. Errors returned here mean no session was created.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*session.Session, error) {
	defer s.discard(ctx, req.File)

	cfg, adapter, err := s.resolve(ctx, req.Settings)
	if err != nil {
		return nil, err
	}

	in, err := s.prepare(ctx, req.File, cfg.Chunking)
	if err != nil {
		return nil, err
	}

	sess := s.store.Create(ctx, session.KindIngest, cfg)
	go s.runIngest(sess, adapter, req.Prompt, in)
	return sess, nil
}

// Compare extracts both documents and diffs the merged results.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*session.Session, error) {
	defer s.discard(ctx, req.First)
	defer s.discard(ctx, req.Second)

	cfg, adapter, err := s.resolve(ctx, req.Settings)
	if err != nil {
		return nil, err
	}

	first, err := s.prepare(ctx, req.First, cfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("document 1: %w", err)
	}
	second, err := s.prepare(ctx, req.Second, cfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("document 2: %w", err)
	}

	sess := s.store.Create(ctx, session.KindCompare, cfg)
	go s.runCompare(sess, adapter, req.Prompt, first, second)
	return sess, nil
}

func (s *Service) Get(id string) (*session.Session, error) {
	return s.store.Get(id)
}

func (s *Service) Close(id string) error {
	return s.store.Close(id)
}

func (s *Service) resolve(ctx context.Context, req settings.Request) (provider.ModelConfig, provider.Adapter, error) {
	cfg, err := s.configs.ModelConfig(ctx, req)
	if err != nil {
		return provider.ModelConfig{}, nil, err
	}
	adapter, err := s.adapters.Get(cfg.Provider)
	if err != nil {
		return provider.ModelConfig{}, nil, fmt.Errorf("%w: %v", settings.ErrUnsupportedProvider, err)
	}
	return cfg, adapter, nil
}

func (s *Service) prepare(ctx context.Context, up Upload, policy text.Policy) (input, error) {
	doc, err := s.loader.Load(ctx, up.Path, up.Name)
	if err != nil {
		return input{}, err
	}
	if doc.Structured {
		if len(doc.Rows) == 0 {
			return input{}, &text.ChunkingError{Reason: "spreadsheet contains no rows"}
		}
		return input{doc: doc}, nil
	}

	policy = policyFor(doc.Format, policy)
	chunks, err := text.Split(doc.Pages, policy)
	if err != nil {
		return input{}, err
	}
	s.logger.InfoContext(ctx, "document chunked", "document", doc.Name, "format", doc.Format, "strategy", policy.Strategy, "pages", len(doc.Pages), "chunks", len(chunks))
	return input{doc: doc, chunks: chunks}, nil
}

// policyFor fills in the strategy a request left open. Only PDFs have real
// page breaks; text files and rendered sheets are cut by token budget.
func policyFor(format document.Format, p text.Policy) text.Policy {
	if p.Strategy != "" {
		return p
	}
	if format == document.FormatPDF {
		p.Strategy = text.StrategyPages
	} else {
		p.Strategy = text.StrategyTokens
	}
	return p
}

func (s *Service) discard(ctx context.Context, up Upload) {
	if up.Path == "" {
		return
	}
	if err := os.Remove(up.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WarnContext(ctx, "failed to clean up uploaded file", "error", err, "path", filepath.Clean(up.Path))
	}
}

func (s *Service) runIngest(sess *session.Session, adapter provider.Adapter, prompt string, in input) {
	ctx := middleware.WithSessionID(sess.Context(), sess.ID)
	s.metrics.JobStarted()

	tr := sess.Progress
	tr.Start(len(in.chunks), fmt.Sprintf("extracting %s", in.doc.Name))

	merged, err := s.extract(ctx, sess, adapter, prompt, in)
	if err != nil {
		s.fail(ctx, sess, []string{in.doc.Name}, merged, err)
		return
	}

	tr.Phase("exporting spreadsheet")
	data, err := export.Rows(merged.Rows)
	if err != nil {
		s.fail(ctx, sess, []string{in.doc.Name}, merged, fmt.Errorf("failed to export rows: %w", err))
		return
	}

	sess.SetResult(&session.Result{
		Rows:         merged.Rows,
		Warnings:     merged.Warnings,
		TotalChunks:  merged.Total,
		FailedChunks: len(merged.Failed),
		Artifact:     data,
		Filename:     export.IngestFilename(in.doc.Name),
	})
	tr.Complete(fmt.Sprintf("extracted %d rows", len(merged.Rows)))
	s.succeed(ctx, sess, []string{in.doc.Name}, merged)
}

func (s *Service) runCompare(sess *session.Session, adapter provider.Adapter, prompt string, first, second input) {
	ctx := middleware.WithSessionID(sess.Context(), sess.ID)
	s.metrics.JobStarted()
	docs := []string{first.doc.Name, second.doc.Name}

	tr := sess.Progress
	tr.Start(len(first.chunks)+len(second.chunks), fmt.Sprintf("comparing %s and %s", first.doc.Name, second.doc.Name))

	base, err := s.extract(ctx, sess, adapter, prompt, first)
	if err != nil {
		s.fail(ctx, sess, docs, base, fmt.Errorf("document 1: %w", err))
		return
	}
	next, err := s.extract(ctx, sess, adapter, prompt, second)
	if err != nil {
		s.fail(ctx, sess, docs, combine(base, next), fmt.Errorf("document 2: %w", err))
		return
	}

	tr.Phase("aligning documents")
	entries := merge.Diff(base.Rows, next.Rows)
	all := combine(base, next)

	tr.Phase("exporting spreadsheet")
	data, err := export.Diff(entries)
	if err != nil {
		s.fail(ctx, sess, docs, all, fmt.Errorf("failed to export comparison: %w", err))
		return
	}

	sess.SetResult(&session.Result{
		Diff:         entries,
		Warnings:     all.Warnings,
		TotalChunks:  all.Total,
		FailedChunks: len(all.Failed),
		Artifact:     data,
		Filename:     export.CompareFilename(first.doc.Name, second.doc.Name),
	})
	tr.Complete(fmt.Sprintf("compared %d rows", len(entries)))
	s.succeed(ctx, sess, docs, all)
}

// extract runs one document through the pool and merges its units.
func (s *Service) extract(ctx context.Context, sess *session.Session, adapter provider.Adapter, prompt string, in input) (merge.Merged, error) {
	if in.doc.Structured {
		s.logger.InfoContext(ctx, "using structured rows, skipping provider", "document", in.doc.Name, "rows", len(in.doc.Rows))
		return merge.Merged{Rows: append([]schema.Row(nil), in.doc.Rows...)}, nil
	}

	results := make([]worker.UnitResult, 0, len(in.chunks))
	job := worker.Job{
		SessionID: sess.ID,
		Adapter:   adapter,
		Chunks:    in.chunks,
		Prompt:    prompt,
		Config:    sess.Config,
	}
	err := s.pool.Run(ctx, job, func(r worker.UnitResult) {
		results = append(results, r)
		sess.Progress.Advance("")
	})
	if err != nil {
		return merge.Merged{Total: len(in.chunks)}, err
	}

	sess.Progress.Phase("merging results")
	return merge.Rows(results, in.chunks), nil
}

// combine folds two per-document merges into one summary, prefixing
// warnings with their document.
func combine(a, b merge.Merged) merge.Merged {
	out := merge.Merged{Total: a.Total + b.Total}
	for _, w := range a.Warnings {
		out.Warnings = append(out.Warnings, "document 1: "+w)
	}
	for _, w := range b.Warnings {
		out.Warnings = append(out.Warnings, "document 2: "+w)
	}
	out.Failed = append(out.Failed, a.Failed...)
	out.Failed = append(out.Failed, b.Failed...)
	return out
}

func (s *Service) succeed(ctx context.Context, sess *session.Session, docs []string, m merge.Merged) {
	s.logger.InfoContext(ctx, "job completed", "kind", sess.Kind, "chunks", m.Total, "failed_chunks", len(m.Failed))
	s.metrics.JobFinished(string(sess.Kind), "completed")
	s.publish(ctx, sess, docs, m, "completed", "")
}

func (s *Service) fail(ctx context.Context, sess *session.Session, docs []string, m merge.Merged, err error) {
	msg := "extraction failed"
	if errors.Is(err, context.Canceled) {
		msg = "job cancelled"
	}
	s.logger.ErrorContext(ctx, "job failed", "kind", sess.Kind, "error", err)
	sess.Progress.Fail(msg, err.Error())
	s.metrics.JobFinished(string(sess.Kind), "failed")
	s.publish(ctx, sess, docs, m, "failed", err.Error())
}

func (s *Service) publish(ctx context.Context, sess *session.Session, docs []string, m merge.Merged, status, errMsg string) {
	if s.events == nil {
		return
	}
	ev := worker.JobEvent{
		SessionID:     sess.ID,
		Kind:          string(sess.Kind),
		Status:        status,
		Provider:      sess.Config.Provider,
		Model:         sess.Config.Model,
		Documents:     docs,
		TotalChunks:   m.Total,
		FailedChunks:  len(m.Failed),
		Warnings:      m.Warnings,
		Error:         errMsg,
		CorrelationID: middleware.GetCorrelationID(ctx),
		FinishedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to marshal job event", "error", err)
		return
	}
	if err := s.events.Publish(config.TopicExtractionJob, body); err != nil {
		s.logger.WarnContext(ctx, "failed to publish job event", "error", err)
	}
}
