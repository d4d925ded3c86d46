// Package agentrouter is the high-level façade over sessions and the
// supervisor team. Most applications:
//  1. Build a supervisor (specialist.NewSupervisor, or NewFromConfig for the
//     full team described by a config file)
//  2. Create a Router around it via New()
//  3. Answer chat messages with Query (streaming) or QuerySync
//
// The Router owns the session registry, bounds the number of queries running
// at once across all sessions, and can sweep expired sessions in the
// background with StartJanitor.
package agentrouter

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/memory"
	"github.com/hupe1980/agentrouter/session"
)

// DefaultMaxConcurrentQueries bounds concurrent queries across sessions.
const DefaultMaxConcurrentQueries = 10

// Options configures the Router.
type Options struct {
	// MaxConcurrentQueries limits queries running at once across all
	// sessions. 0 disables the limit.
	MaxConcurrentQueries int

	// Timezone, Trim, MaxSteps and EventBufferSize are handed to every new session.
	Timezone        string
	Trim            core.TrimPolicy
	MaxSteps        int
	EventBufferSize int

	// TTL is the session lifetime used by the default registry.
	TTL time.Duration
	// Now is the clock shared by the registry and sessions.
	Now func() time.Time

	// Memory backs subordinate thread memory. Threads of evicted sessions
	// are deleted.
	Memory *memory.InMemoryStore

	// Registry overrides the default in-memory registry. Sessions it creates
	// are used as-is.
	Registry session.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Router answers (user, conversation) scoped queries through a supervisor.
type Router struct {
	supervisor core.Agent
	registry   session.Registry
	memory     *memory.InMemoryStore
	sem        chan struct{}
	logger     logging.Logger
}

// New creates a Router with optional overrides. Unset services get in-memory
// implementations.
func New(supervisor core.Agent, optFns ...func(o *Options)) *Router {
	opts := Options{
		MaxConcurrentQueries: DefaultMaxConcurrentQueries,
		Trim:                 core.TrimPolicy{MaxMessages: session.DefaultMaxMessages},
		MaxSteps:             session.DefaultMaxSteps,
		EventBufferSize:      session.DefaultEventBufferSize,
		TTL:                  session.DefaultTTL,
		Now:                  time.Now,
		Memory:               memory.NewInMemoryStore(),
		Logger:               logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Router{
		supervisor: supervisor,
		memory:     opts.Memory,
		logger:     opts.Logger,
	}
	if opts.MaxConcurrentQueries > 0 {
		r.sem = make(chan struct{}, opts.MaxConcurrentQueries)
	}

	r.registry = opts.Registry
	if r.registry == nil {
		r.registry = session.NewInMemoryRegistry(
			func(id, threadID string, expiresAt time.Time) *session.Session {
				return session.New(id, threadID, supervisor, func(o *session.Options) {
					o.Timezone = opts.Timezone
					o.Now = opts.Now
					o.Trim = opts.Trim
					o.MaxSteps = opts.MaxSteps
					o.EventBufferSize = opts.EventBufferSize
					o.ExpiresAt = expiresAt
					o.Logger = opts.Logger
					if opts.Memory != nil {
						o.Checkpointer = opts.Memory
					}
				})
			},
			func(o *session.RegistryOptions) {
				o.TTL = opts.TTL
				o.Now = opts.Now
				o.Logger = opts.Logger
				o.OnEvict = r.forget
			},
		)
	}

	return r
}

// Supervisor returns the agent every session routes through.
func (r *Router) Supervisor() core.Agent { return r.supervisor }

// Registry returns the session registry.
func (r *Router) Registry() session.Registry { return r.registry }

// Session returns the live session of a (user, conversation) pair.
func (r *Router) Session(userID, conversationID string) *session.Session {
	return r.registry.GetOrCreate(userID, conversationID)
}

// Query streams the answer to query within the conversation of userID. It
// waits for the session to be free, then for a free query slot, and fails
// only if ctx ends first. A query queued behind a busy session holds no slot.
// The stream follows session.Session.RunQuery semantics.
func (r *Router) Query(ctx context.Context, userID, conversationID, query string) (<-chan string, error) {
	s := r.Session(userID, conversationID)

	reservation, err := s.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.acquire(ctx); err != nil {
		reservation.Cancel()
		return nil, err
	}

	r.logger.Debug("router.query.start", "session_id", s.ID(), "user_id", userID)

	fragments := reservation.Run(ctx, query)
	out := make(chan string)

	go func() {
		defer close(out)
		defer r.release()

		for f := range fragments {
			select {
			case out <- f:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// QuerySync is a synchronous helper that collects the whole answer.
func (r *Router) QuerySync(ctx context.Context, userID, conversationID, query string) (string, error) {
	fragments, err := r.Query(ctx, userID, conversationID, query)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(session.Collect(fragments))
	if err := ctx.Err(); err != nil {
		return answer, err
	}
	return answer, nil
}

// StartJanitor evicts expired sessions every interval until ctx is done.
// The returned channel is closed when the janitor stops.
func (r *Router) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		if interval <= 0 {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.registry.EvictExpired(); n > 0 {
					r.logger.Debug("router.janitor.swept", "evicted", n)
				}
			}
		}
	}()

	return done
}

func (r *Router) forget(s *session.Session) {
	if r.memory != nil {
		r.memory.DeleteThread(s.ThreadID())
	}
}

func (r *Router) acquire(ctx context.Context) error {
	if r.sem == nil {
		return ctx.Err()
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) release() {
	if r.sem != nil {
		<-r.sem
	}
}
