package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrouter/logging"
)

// DefaultTTL is the lifetime of a session created by a registry.
const DefaultTTL = 2 * time.Hour

// Registry hands out the session of a (user, conversation) pair.
type Registry interface {
	// GetOrCreate returns the live session for the pair, replacing an expired one.
	GetOrCreate(userID, conversationID string) *Session
	// EvictExpired drops every expired session and reports how many were removed.
	EvictExpired() int
}

// Factory constructs the session stored under id. threadID and expiresAt are
// assigned by the registry.
type Factory func(id, threadID string, expiresAt time.Time) *Session

// RegistryOptions configures an InMemoryRegistry.
type RegistryOptions struct {
	TTL     time.Duration
	Now     func() time.Time
	Logger  logging.Logger
	OnEvict func(s *Session) // called outside the lock for every replaced or evicted session
}

// InMemoryRegistry is a Registry backed by a process-local map.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
	opts     RegistryOptions
}

var _ Registry = (*InMemoryRegistry)(nil)

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry(factory Factory, optFns ...func(o *RegistryOptions)) *InMemoryRegistry {
	opts := RegistryOptions{
		TTL:    DefaultTTL,
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &InMemoryRegistry{
		sessions: make(map[string]*Session),
		factory:  factory,
		opts:     opts,
	}
}

// Key joins a user and conversation identity into a session id.
func Key(userID, conversationID string) string {
	return userID + "::" + conversationID
}

// ThreadID derives the memory thread of a session from its user and expiry.
func ThreadID(userID string, expiresAt time.Time) string {
	return fmt.Sprintf("%s_%d", userID, expiresAt.Unix())
}

// GetOrCreate implements Registry. Expiry is checked at lookup time.
func (r *InMemoryRegistry) GetOrCreate(userID, conversationID string) *Session {
	key := Key(userID, conversationID)
	now := r.opts.Now()

	r.mu.RLock()
	s, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok && !s.Expired(now) {
		return s
	}

	r.mu.Lock()
	old, ok := r.sessions[key]
	if ok && !old.Expired(now) {
		r.mu.Unlock()
		return old
	}
	expiresAt := now.Add(r.opts.TTL)
	s = r.factory(key, ThreadID(userID, expiresAt), expiresAt)
	r.sessions[key] = s
	r.mu.Unlock()

	if ok {
		r.opts.Logger.Debug("registry.session.expired", "session_id", key, "thread_id", old.ThreadID())
		r.evicted(old)
	}
	r.opts.Logger.Info("registry.session.created", "session_id", key, "thread_id", s.ThreadID(), "expires_at", expiresAt)

	return s
}

// EvictExpired implements Registry.
func (r *InMemoryRegistry) EvictExpired() int {
	now := r.opts.Now()

	r.mu.Lock()
	var expired []*Session
	for key, s := range r.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.evicted(s)
	}
	if len(expired) > 0 {
		r.opts.Logger.Info("registry.sessions.evicted", "count", len(expired))
	}

	return len(expired)
}

// Len returns the number of stored sessions, expired or not.
func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *InMemoryRegistry) evicted(s *Session) {
	if r.opts.OnEvict != nil {
		r.opts.OnEvict(s)
	}
}
