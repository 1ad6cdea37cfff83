package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokeshec23/GC-AI/internal/progress"
	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/schema"
)

var ErrNotFound = errors.New("session not found")

type Kind string

const (
	KindIngest  Kind = "ingest"
	KindCompare Kind = "compare"
)

// Result is the immutable outcome of a completed job.
type Result struct {
	Rows         []schema.Row
	Diff         []schema.DiffEntry
	Warnings     []string
	TotalChunks  int
	FailedChunks int
	Artifact     []byte
	Filename     string
}

// Session is the handle for one asynchronous job.
type Session struct {
	ID        string
	Kind      Kind
	Config    provider.ModelConfig
	CreatedAt time.Time
	Progress  *progress.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	result *Result
}

// Context is cancelled when the session is closed or swept.
func (s *Session) Context() context.Context {
	return s.ctx
}

// SetResult stores the job outcome. Only the first call has effect.
func (s *Session) SetResult(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		s.result = r
	}
}

// Result returns the outcome once the job completed successfully.
func (s *Session) Result() (*Result, bool) {
	if s.Progress.Snapshot().Status != progress.StatusCompleted {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.result != nil
}

// Warnings returns the warnings recorded so far, even for a failed job.
func (s *Session) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return s.result.Warnings
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Store)

func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		interval: time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a new pending session. The job context derives from
// parent without its cancellation, so a finished request does not stop
// the job.
func (st *Store) Create(parent context.Context, kind Kind, cfg provider.ModelConfig) *Session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Config:    cfg,
		CreatedAt: st.now(),
		Progress:  progress.NewTracker(),
		ctx:       ctx,
		cancel:    cancel,
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	st.logger.InfoContext(ctx, "session created", "session_id", s.ID, "kind", kind, "provider", cfg.Provider, "model", cfg.Model)
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close cancels any in-flight work and forgets the session.
func (st *Store) Close(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.cancel()
	s.Progress.Fail("session closed", "closed by client")
	st.logger.Info("session closed", "session_id", id)
	return nil
}

// Sweep removes terminal sessions older than the retention window and
// returns how many were removed.
func (st *Store) Sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for id, s := range st.sessions {
		ended := s.Progress.EndedAt()
		if ended.IsZero() || now.Sub(ended) < st.ttl {
			continue
		}
		s.cancel()
		delete(st.sessions, id)
		n++
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (st *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(st.now()); n > 0 {
				st.logger.Info("swept expired sessions", "count", n, "remaining", st.Len())
			}
		}
	}
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
