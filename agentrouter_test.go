package agentrouter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/config"
	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/memory"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/session"
	"github.com/hupe1980/agentrouter/specialist"
)

type stubAgent struct {
	block chan struct{}
	// blockSession restricts blocking to one session when set.
	blockSession string
}

func (a *stubAgent) Name() string        { return "supervisor" }
func (a *stubAgent) Description() string { return "stub" }

func (a *stubAgent) Run(rc *core.RunContext, history []core.Message) (core.RunResult, error) {
	if a.block != nil && (a.blockSession == "" || a.blockSession == rc.SessionID) {
		select {
		case <-a.block:
		case <-rc.Done():
			return core.RunResult{}, rc.Err()
		}
	}
	_ = rc.EmitEvent(core.NewTextDeltaEvent(rc.RunID, a.Name(), rc.Speaker, "answer for "))
	_ = rc.EmitEvent(core.NewTextDeltaEvent(rc.RunID, a.Name(), rc.Speaker, rc.SessionID))
	return core.RunResult{Text: "answer for " + rc.SessionID}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRouter_QuerySync(t *testing.T) {
	r := New(&stubAgent{})

	answer, err := r.QuerySync(context.Background(), "u1", "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "answer for u1::c1", answer)

	s := r.Session("u1", "c1")
	assert.Equal(t, 4, s.Len())
	assert.Same(t, s, r.Registry().GetOrCreate("u1", "c1"))
}

func TestRouter_QueryStreamsFragments(t *testing.T) {
	r := New(&stubAgent{})

	fragments, err := r.Query(context.Background(), "u1", "c2", "hi")
	require.NoError(t, err)

	var got []string
	for f := range fragments {
		got = append(got, f)
	}
	assert.Equal(t, []string{"answer for ", "u1::c2"}, got)
}

func TestRouter_ConcurrencyLimit(t *testing.T) {
	block := make(chan struct{})
	r := New(&stubAgent{block: block}, func(o *Options) { o.MaxConcurrentQueries = 1 })

	first, err := r.Query(context.Background(), "u1", "c1", "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Query(ctx, "u2", "c1", "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	assert.Equal(t, "answer for u1::c1", session.Collect(first))

	answer, err := r.QuerySync(context.Background(), "u2", "c1", "third")
	require.NoError(t, err)
	assert.Equal(t, "answer for u2::c1", answer)
}

func TestRouter_QueuedQueryHoldsNoSlot(t *testing.T) {
	block := make(chan struct{})
	r := New(&stubAgent{block: block, blockSession: "u1::c1"}, func(o *Options) { o.MaxConcurrentQueries = 2 })

	first, err := r.Query(context.Background(), "u1", "c1", "first")
	require.NoError(t, err)

	queued := make(chan string, 1)
	go func() {
		answer, _ := r.QuerySync(context.Background(), "u1", "c1", "second")
		queued <- answer
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	answer, err := r.QuerySync(ctx, "u2", "c1", "other")
	require.NoError(t, err)
	assert.Equal(t, "answer for u2::c1", answer)

	close(block)
	assert.Equal(t, "answer for u1::c1", session.Collect(first))
	assert.Equal(t, "answer for u1::c1", <-queued)
}

func TestRouter_ExpiredSessionForgetsMemory(t *testing.T) {
	clk := &clock{now: time.Unix(1700000000, 0)}
	store := memory.NewInMemoryStore()
	r := New(&stubAgent{}, func(o *Options) {
		o.Now = clk.Now
		o.TTL = time.Hour
		o.Memory = store
	})

	old := r.Session("u1", "c1")
	require.NoError(t, store.Save(old.ThreadID(), specialist.OrdersName, []core.Message{core.NewUserMessage("order 42")}))
	assert.Equal(t, 1, store.Len())

	clk.Advance(time.Hour)
	fresh := r.Session("u1", "c1")
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 0, store.Len())
}

func TestRouter_Janitor(t *testing.T) {
	clk := &clock{now: time.Unix(1700000000, 0)}
	registry := session.NewInMemoryRegistry(
		func(id, threadID string, expiresAt time.Time) *session.Session {
			return session.New(id, threadID, &stubAgent{}, func(o *session.Options) { o.ExpiresAt = expiresAt })
		},
		func(o *session.RegistryOptions) {
			o.Now = clk.Now
			o.TTL = time.Minute
		},
	)
	r := New(&stubAgent{}, func(o *Options) { o.Registry = registry })

	r.Session("u1", "c1")
	r.Session("u2", "c1")
	clk.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := r.StartJanitor(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRouter_JanitorDisabled(t *testing.T) {
	r := New(&stubAgent{})
	done := r.StartJanitor(context.Background(), 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor with zero interval should stop immediately")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Orders.BaseURL = "http://127.0.0.1:1"
	cfg.Logging.Level = "error"

	llm := model.NewMockModel("sup").EnqueueText("Hello from the team.")
	r, err := NewFromConfig(cfg, llm)
	require.NoError(t, err)

	answer, err := r.QuerySync(context.Background(), "u1", "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello from the team.", answer)

	req := llm.Requests()[0]
	require.Len(t, req.Tools, 3)
	assert.Equal(t, specialist.OrdersName, req.Tools[0].Function.Name)
	assert.Equal(t, specialist.AnalyticsName, req.Tools[1].Function.Name)
	assert.Equal(t, specialist.ReviewName, req.Tools[2].Function.Name)
	assert.Contains(t, req.Instructions, "session_id u1::c1")
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.Agents.Enabled = []string{"billing"}

	_, err := NewFromConfig(cfg, model.NewMockModel("m"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = config.Default()
	cfg.Agents.Enabled = []string{config.AgentAnalytics}
	cfg.Logging.Level = "loud"
	_, err = NewFromConfig(cfg, model.NewMockModel("m"))
	assert.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: config.ProviderOpenAI, Name: "gpt-4o-mini", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderAnthropic, Name: "claude-3-5-haiku-latest", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewModel(config.ModelConfig{Provider: "llama"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
