package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/core"
)

// Interface compliance (compile-time assertions)
var _ core.Checkpointer = (*InMemoryStore)(nil)

func TestInMemoryStore_LoadSave(t *testing.T) {
	store := NewInMemoryStore()

	h, err := store.Load("u1_1700000000", "orders")
	require.NoError(t, err)
	assert.Empty(t, h)

	in := []core.Message{core.NewUserMessage("order 42"), core.NewAssistantMessage("shipped")}
	require.NoError(t, store.Save("u1_1700000000", "orders", in))

	got, err := store.Load("u1_1700000000", "orders")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "order 42", got[0].Text())

	// isolation by agent and thread
	other, _ := store.Load("u1_1700000000", "analytics")
	assert.Empty(t, other)
	other, _ = store.Load("u2_1700000000", "orders")
	assert.Empty(t, other)
}

func TestInMemoryStore_CopyIsolation(t *testing.T) {
	store := NewInMemoryStore()
	in := []core.Message{core.NewUserMessage("a")}
	require.NoError(t, store.Save("t", "orders", in))

	in[0] = core.NewUserMessage("mutated")
	got, _ := store.Load("t", "orders")
	assert.Equal(t, "a", got[0].Text())

	got[0] = core.NewUserMessage("changed")
	again, _ := store.Load("t", "orders")
	assert.Equal(t, "a", again[0].Text())
}

func TestInMemoryStore_Bounded(t *testing.T) {
	store := NewInMemoryStore(func(o *Options) { o.MaxMessages = 3 })
	var h []core.Message
	for i := 0; i < 10; i++ {
		h = append(h, core.NewUserMessage(fmt.Sprintf("m%d", i)))
	}
	require.NoError(t, store.Save("t", "orders", h))

	got, _ := store.Load("t", "orders")
	require.Len(t, got, 3)
	assert.Equal(t, "m7", got[0].Text())
	assert.Equal(t, "m9", got[2].Text())
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Save("alice_1", "orders", nil))
	require.NoError(t, store.Save("alice_2", "orders", nil))
	require.NoError(t, store.Save("bob_1", "orders", nil))
	assert.Equal(t, 3, store.Len())

	store.DeleteThread("bob_1")
	assert.Equal(t, 2, store.Len())

	assert.Equal(t, 2, store.DeleteUser("alice"))
	assert.Equal(t, 0, store.Len())
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread := fmt.Sprintf("u%d_1", i%4)
			_ = store.Save(thread, "orders", []core.Message{core.NewUserMessage("x")})
			_, _ = store.Load(thread, "orders")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, store.Len())
}
