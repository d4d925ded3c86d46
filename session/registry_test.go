package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock, optFns ...func(o *RegistryOptions)) *InMemoryRegistry {
	factory := func(id, threadID string, expiresAt time.Time) *Session {
		return New(id, threadID, &echoAgent{}, func(o *Options) { o.ExpiresAt = expiresAt })
	}
	opts := append([]func(o *RegistryOptions){func(o *RegistryOptions) { o.Now = clock.Now }}, optFns...)
	return NewInMemoryRegistry(factory, opts...)
}

func TestRegistry_GetOrCreate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRegistry(clock)

	s := r.GetOrCreate("u1", "c1")
	assert.Equal(t, "u1::c1", s.ID())
	assert.Equal(t, "u1_1700007200", s.ThreadID())
	assert.Equal(t, time.Unix(1700007200, 0), s.ExpiresAt())

	assert.Same(t, s, r.GetOrCreate("u1", "c1"))
	assert.NotSame(t, s, r.GetOrCreate("u1", "c2"))
	assert.NotSame(t, s, r.GetOrCreate("u2", "c1"))
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ExpiryIsLazy(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var evicted []string
	r := newTestRegistry(clock, func(o *RegistryOptions) {
		o.OnEvict = func(s *Session) { evicted = append(evicted, s.ThreadID()) }
	})

	first := r.GetOrCreate("u1", "c1")
	clock.Advance(DefaultTTL - time.Second)
	assert.Same(t, first, r.GetOrCreate("u1", "c1"))

	clock.Advance(time.Second)
	second := r.GetOrCreate("u1", "c1")
	assert.NotSame(t, first, second)
	assert.Equal(t, "u1_1700014400", second.ThreadID())
	assert.Equal(t, []string{"u1_1700007200"}, evicted)
	assert.Equal(t, 1, second.Len())
}

func TestRegistry_EvictExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := memory.NewInMemoryStore()
	r := newTestRegistry(clock, func(o *RegistryOptions) {
		o.TTL = time.Hour
		o.OnEvict = func(s *Session) { store.DeleteThread(s.ThreadID()) }
	})

	old := r.GetOrCreate("u1", "c1")
	require.NoError(t, store.Save(old.ThreadID(), "orders", []core.Message{core.NewUserMessage("order 42")}))

	clock.Advance(30 * time.Minute)
	fresh := r.GetOrCreate("u2", "c1")

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, r.EvictExpired())
	assert.Equal(t, 1, r.Len())
	assert.Same(t, fresh, r.GetOrCreate("u2", "c1"))

	saved, err := store.Load(old.ThreadID(), "orders")
	require.NoError(t, err)
	assert.Empty(t, saved)

	assert.Equal(t, 0, r.EvictExpired())
}

func TestRegistry_Concurrent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRegistry(clock)

	var wg sync.WaitGroup
	results := make([]*Session, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate(fmt.Sprintf("u%d", i%5), "c1")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, r.Len())
	for i, s := range results {
		assert.Same(t, r.GetOrCreate(fmt.Sprintf("u%d", i%5), "c1"), s)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "U1::C9", Key("U1", "C9"))
	assert.Equal(t, "U1_1700000000", ThreadID("U1", time.Unix(1700000000, 0)))
}
