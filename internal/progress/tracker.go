package progress

import (
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Update is one published state of a session.
type Update struct {
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
	Done     int    `json:"-"`
	Total    int    `json:"-"`
}

// Tracker is the per-session progress state machine. All mutators are safe
// for concurrent use; progress never decreases.
type Tracker struct {
	mu     sync.Mutex
	state  Update
	subs   map[int]chan Update
	nextID int
	ended  time.Time
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		state: Update{Status: StatusPending, Message: "queued"},
		subs:  make(map[int]chan Update),
		now:   time.Now,
	}
}

// Start moves the session to running with total work units.
func (t *Tracker) Start(total int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status.Terminal() {
		return
	}
	t.state.Status = StatusRunning
	t.state.Total = total
	t.state.Message = msg
	t.publish()
}

// Advance records one resolved unit.
func (t *Tracker) Advance(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status.Terminal() {
		return
	}
	t.state.Status = StatusRunning
	if t.state.Done < t.state.Total {
		t.state.Done++
	}
	if p := running(t.state.Done, t.state.Total); p > t.state.Progress {
		t.state.Progress = p
	}
	if msg == "" {
		msg = fmt.Sprintf("processed chunk %d of %d", t.state.Done, t.state.Total)
	}
	t.state.Message = msg
	t.publish()
}

// Phase changes the message without moving progress.
func (t *Tracker) Phase(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status.Terminal() {
		return
	}
	t.state.Message = msg
	t.publish()
}

func (t *Tracker) Complete(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status.Terminal() {
		return
	}
	t.state.Status = StatusCompleted
	t.state.Progress = 100
	t.state.Message = msg
	t.finish()
}

// Fail freezes progress and records detail.
func (t *Tracker) Fail(msg, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status.Terminal() {
		return
	}
	t.state.Status = StatusFailed
	t.state.Message = msg
	t.state.Error = detail
	t.finish()
}

func (t *Tracker) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// EndedAt returns when the session reached a terminal state, or the zero
// time while it is still active.
func (t *Tracker) EndedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// Subscribe returns a channel that always holds the latest state. A slow
// reader misses intermediate updates but never blocks the producer. The
// channel is closed after the terminal update or by cancel.
func (t *Tracker) Subscribe() (<-chan Update, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Update, 1)
	ch <- t.state
	if t.state.Status.Terminal() {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// publish must be called with mu held.
func (t *Tracker) publish() {
	for _, ch := range t.subs {
		offer(ch, t.state)
	}
}

// finish must be called with mu held.
func (t *Tracker) finish() {
	t.ended = t.now()
	for id, ch := range t.subs {
		offer(ch, t.state)
		close(ch)
		delete(t.subs, id)
	}
}

func offer(ch chan Update, u Update) {
	select {
	case <-ch:
	default:
	}
	ch <- u
}

func running(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := 100 * done / total
	if p > 99 {
		p = 99
	}
	return p
}
