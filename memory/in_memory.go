package memory

import (
	"strings"
	"sync"

	"github.com/hupe1980/agentrouter/core"
)

// DefaultMaxMessages bounds every stored transcript.
const DefaultMaxMessages = 100

// Options configures an InMemoryStore.
type Options struct {
	// MaxMessages caps each transcript; <= 0 keeps everything.
	MaxMessages int
}

// InMemoryStore is a process-local Checkpointer keyed by (thread, agent).
//
// Concurrency: protected by RWMutex. Loaded and saved histories are deep
// copies, so callers never share message slices with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]map[string][]core.Message // threadID -> agent -> transcript
	trim    core.TrimPolicy
}

// NewInMemoryStore creates a new in-memory checkpointer.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{MaxMessages: DefaultMaxMessages}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{
		threads: make(map[string]map[string][]core.Message),
		trim:    core.TrimPolicy{MaxMessages: opts.MaxMessages},
	}
}

// Load returns a copy of the transcript of agent within thread. Unknown
// pairs yield an empty history.
func (m *InMemoryStore) Load(threadID, agent string) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents, ok := m.threads[threadID]
	if !ok {
		return nil, nil
	}

	return core.CloneMessages(agents[agent]), nil
}

// Save replaces the transcript of agent within thread, trimmed to the cap.
func (m *InMemoryStore) Save(threadID, agent string, history []core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[threadID]; !ok {
		m.threads[threadID] = make(map[string][]core.Message)
	}
	m.threads[threadID][agent] = core.CloneMessages(m.trim.Apply(history))

	return nil
}

// DeleteThread drops every transcript of threadID.
func (m *InMemoryStore) DeleteThread(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
}

// DeleteUser drops every thread owned by userID. Thread ids have the form
// "<user>_<expiry unix>".
func (m *InMemoryStore) DeleteUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := userID + "_"
	n := 0
	for id := range m.threads {
		if strings.HasPrefix(id, prefix) {
			delete(m.threads, id)
			n++
		}
	}
	return n
}

// Len returns the number of threads with at least one transcript.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threads)
}
