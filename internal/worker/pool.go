package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/lokeshec23/GC-AI/internal/metrics"
	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// UnitResult is the outcome of one chunk. Rows is nil when Status is failed.
type UnitResult struct {
	ChunkIndex int
	Rows       []schema.Row
	Status     Status
	Err        error
	Attempts   int
}

type Job struct {
	SessionID string
	Adapter   provider.Adapter
	Chunks    []text.Chunk
	// Prompt is the instruction; chunk content is appended per unit.
	Prompt string
	Config provider.ModelConfig
}

// Pool drains the chunks of one job with bounded concurrency. It holds no
// per-job state, so one Pool serves every session.
type Pool struct {
	workers     int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithRetryDelay(base, ceiling time.Duration) Option {
	return func(p *Pool) {
		if base > 0 {
			p.baseDelay = base
		}
		if ceiling >= base && ceiling > 0 {
			p.maxDelay = ceiling
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers:     4,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    10 * time.Second,
		callTimeout: 2 * time.Minute,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes every chunk and hands each resolved unit to sink. Calls to
// sink are serialized. Run returns the terminal provider error that aborted
// the job, ctx.Err() if the job was cancelled, or nil once every chunk has
// resolved (some possibly failed).
func (p *Pool) Run(ctx context.Context, job Job, sink func(UnitResult)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var mu sync.Mutex
	emit := func(r UnitResult) {
		mu.Lock()
		defer mu.Unlock()
		sink(r)
	}

	for _, chunk := range job.Chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := p.process(gctx, job, chunk)
			if err != nil {
				return err
			}
			emit(res)
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// process returns an error only when the whole job must stop.
func (p *Pool) process(ctx context.Context, job Job, chunk text.Chunk) (UnitResult, error) {
	log := p.logger.With("session_id", job.SessionID, "chunk_index", chunk.Index, "provider", job.Config.Provider)

	prompt := provider.BuildPrompt(job.Prompt, chunk.Content)
	corrected := false
	attempts := 0
	var rows []schema.Row

	op := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()

		start := time.Now()
		r, err := job.Adapter.Extract(callCtx, chunk, prompt, job.Config)
		if err == nil {
			p.metrics.ProviderCall(job.Config.Provider, "ok", time.Since(start))
			rows = r
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if provider.KindOf(err) == "" && errors.Is(err, context.DeadlineExceeded) {
			err = provider.NewError(job.Config.Provider, provider.KindTimeout, "call timed out", err)
		}
		p.metrics.ProviderCall(job.Config.Provider, outcome(err), time.Since(start))

		switch {
		case provider.IsTerminal(err):
			return backoff.Permanent(err)
		case provider.KindOf(err) == provider.KindInvalidResponse:
			if corrected {
				return backoff.Permanent(err)
			}
			corrected = true
			prompt = provider.CorrectivePrompt(prompt)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay
	b.MaxInterval = p.maxDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.WarnContext(ctx, "chunk attempt failed, retrying",
			"attempt", attempts, "error", err, "wait_ms", wait.Milliseconds())
	})

	switch {
	case err == nil:
		p.metrics.ChunkResolved(job.Config.Provider, string(StatusOK))
		log.InfoContext(ctx, "chunk extracted", "rows", len(rows), "attempts", attempts)
		return UnitResult{ChunkIndex: chunk.Index, Rows: rows, Status: StatusOK, Attempts: attempts}, nil
	case provider.IsTerminal(err):
		log.ErrorContext(ctx, "terminal provider error, aborting job", "error", err)
		return UnitResult{}, err
	case ctx.Err() != nil:
		return UnitResult{}, ctx.Err()
	default:
		p.metrics.ChunkResolved(job.Config.Provider, string(StatusFailed))
		log.ErrorContext(ctx, "chunk failed after retries", "error", err, "attempts", attempts)
		return UnitResult{ChunkIndex: chunk.Index, Status: StatusFailed, Err: err, Attempts: attempts}, nil
	}
}

func outcome(err error) string {
	if k := provider.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
