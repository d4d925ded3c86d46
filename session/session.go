package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

const (
	// FallbackText is the only fragment a failed query produces.
	FallbackText = "Failed to answer the query. Please contact support."

	// DefaultMaxMessages caps the stored history (100 turns of two messages).
	DefaultMaxMessages = 200
	// DefaultMaxSteps bounds the THINK steps of one query across all agents.
	DefaultMaxSteps = 25
	// DefaultEventBufferSize sizes the internal event and fragment channels.
	DefaultEventBufferSize = 100
)

// ErrSessionBusy is returned by TryRunQuery while another query is running.
var ErrSessionBusy = errors.New("session busy")

// Options configures a Session.
type Options struct {
	// Timezone is the IANA zone used for time stamps. Empty selects
	// core.DefaultTimezone.
	Timezone string
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Trim bounds the stored history after every successful query.
	Trim core.TrimPolicy
	// MaxSteps is the step budget shared by the supervisor and its subordinates.
	MaxSteps int
	// EventBufferSize sizes the internal event channel and the fragment stream.
	EventBufferSize int
	// Checkpointer backs subordinate thread memory. Nil disables it.
	Checkpointer core.Checkpointer
	// ExpiresAt is informational for registries; the zero value never expires.
	ExpiresAt time.Time
	// Logger receives session and run logs.
	Logger logging.Logger
}

// Session is the owner of one conversation history.
type Session struct {
	id         string
	threadID   string
	supervisor core.Agent
	opts       Options
	logger     logging.Logger

	sem chan struct{} // one query at a time

	mu      sync.RWMutex
	history []core.Message
}

// New creates a session whose history starts with the anchor message
// "session_id=<id>".
func New(id, threadID string, supervisor core.Agent, optFns ...func(o *Options)) *Session {
	opts := Options{
		Trim:            core.TrimPolicy{MaxMessages: DefaultMaxMessages},
		MaxSteps:        DefaultMaxSteps,
		EventBufferSize: DefaultEventBufferSize,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	return &Session{
		id:         id,
		threadID:   threadID,
		supervisor: supervisor,
		opts:       opts,
		logger:     opts.Logger,
		sem:        make(chan struct{}, 1),
		history:    []core.Message{AnchorMessage(id)},
	}
}

// AnchorMessage returns the context-setting first message of a session.
func AnchorMessage(id string) core.Message {
	return core.NewSystemMessage("session_id=" + id)
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// ThreadID returns the identity used for subordinate memory.
func (s *Session) ThreadID() string { return s.threadID }

// ExpiresAt returns the expiry assigned at construction.
func (s *Session) ExpiresAt() time.Time { return s.opts.ExpiresAt }

// Expired reports whether the session has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.opts.ExpiresAt.IsZero() && !now.Before(s.opts.ExpiresAt)
}

// History returns a copy of the committed history.
func (s *Session) History() []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.CloneMessages(s.history)
}

// Len returns the number of committed messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// RunQuery answers query and streams the supervisor's text fragments in
// generation order. The channel is closed when the query is finished.
//
// Queries on the same session are serialized: RunQuery waits for a running
// query to finish, and gives up without emitting anything if ctx ends first.
// Callers must drain the channel or cancel ctx.
func (s *Session) RunQuery(ctx context.Context, query string) <-chan string {
	out := make(chan string, s.opts.EventBufferSize)

	go func() {
		defer close(out)

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.logger.Warn("session.query.cancelled", "session_id", s.id, "error", ctx.Err().Error())
			return
		}
		defer func() { <-s.sem }()

		s.run(ctx, query, out)
	}()

	return out
}

// TryRunQuery is RunQuery without waiting: it fails with ErrSessionBusy when
// another query holds the session.
func (s *Session) TryRunQuery(ctx context.Context, query string) (<-chan string, error) {
	select {
	case s.sem <- struct{}{}:
	default:
		return nil, ErrSessionBusy
	}

	return (&Reservation{s: s}).Run(ctx, query), nil
}

// Reservation holds a session for exactly one query. It must be consumed by
// Run or released by Cancel.
type Reservation struct {
	s    *Session
	once sync.Once
}

// Reserve waits until no other query holds the session. It fails only if ctx
// ends first.
func (s *Session) Reserve(ctx context.Context) (*Reservation, error) {
	select {
	case s.sem <- struct{}{}:
		return &Reservation{s: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run answers query on the reserved session with RunQuery semantics. The
// session is freed when the stream is closed.
func (r *Reservation) Run(ctx context.Context, query string) <-chan string {
	out := make(chan string, r.s.opts.EventBufferSize)

	go func() {
		defer close(out)
		defer r.Cancel()

		r.s.run(ctx, query, out)
	}()

	return out
}

// Cancel frees the session without running a query. Extra calls are no-ops.
func (r *Reservation) Cancel() {
	r.once.Do(func() { <-r.s.sem })
}

// run executes one query while holding the semaphore. The working history is
// committed only when the supervisor finishes without error.
func (s *Session) run(ctx context.Context, query string, out chan<- string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	turn := core.NewTurnConfig(s.id, s.threadID, s.opts.Timezone, s.opts.Now)

	s.mu.RLock()
	working := core.CloneMessages(s.history)
	s.mu.RUnlock()
	working = append(working, core.NewUserMessage(query), turn.StampMessage())

	runID := core.NewID()
	events := make(chan core.Event, s.opts.EventBufferSize)
	rc := core.NewRunContext(
		ctx,
		runID,
		core.AgentInfo{Name: s.supervisor.Name(), Type: "supervisor"},
		turn,
		events,
		core.NewStepLimiter(s.opts.MaxSteps),
		s.opts.Checkpointer,
		s.logger,
	)

	s.logger.Info("session.query.start", "session_id", s.id, "run_id", runID, "history_len", len(working))
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic recovered: %v", r)
			}
		}()

		_, err := s.supervisor.Run(rc, working)
		done <- err
	}()

	var fragments []string
	for ev := range events {
		if !ev.IsSupervisorText() {
			continue
		}
		fragments = append(fragments, ev.Text)
		select {
		case out <- ev.Text:
		case <-ctx.Done():
		}
	}

	if err := <-done; err != nil {
		s.logger.Error("session.query.failed", "session_id", s.id, "run_id", runID, "error", err.Error())
		select {
		case out <- FallbackText:
		case <-ctx.Done():
		}
		return
	}

	committed := working
	if answer := strings.TrimSpace(strings.Join(fragments, "")); answer != "" {
		committed = append(committed, core.NewAssistantMessage(answer))
	}

	s.mu.Lock()
	s.history = s.opts.Trim.Apply(committed)
	size := len(s.history)
	s.mu.Unlock()

	s.logger.Info("session.query.done", "session_id", s.id, "run_id", runID,
		"fragments", len(fragments), "history_len", size, "duration_ms", time.Since(start).Milliseconds())
}

// Collect drains a fragment stream into one string.
func Collect(fragments <-chan string) string {
	var b strings.Builder
	for f := range fragments {
		b.WriteString(f)
	}
	return b.String()
}
