package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/tool"
)

// FunctionExecutor executes a batch of function/tool calls possibly in parallel
// and hands each recorded tool-result message to the emit callback.
// Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and record an error result)
//   - Emit exactly one tool-result message per incoming FunctionCall that was started
//
// The emit callback receives the call, its tool-result message and the call
// error (nil on success).
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, registry *tool.Registry, fnCalls []core.FunctionCall, emit func(core.FunctionCall, core.Message, error))
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int           // 0 or <1 => no explicit limit (len(fnCalls))
	PreserveOrder  bool          // if true, buffer results and emit in original order
	LogStartEvents bool          // log a start line per function
	Timeout        time.Duration // per call deadline, 0 disables
	// DelegateTimeout replaces Timeout for delegate tools, whose subordinate
	// run is bounded by its own node and tool deadlines. 0 disables.
	DelegateTimeout time.Duration
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

type fnResult struct {
	done bool
	msg  core.Message
	err  error
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	registry *tool.Registry,
	fnCalls []core.FunctionCall,
	emit func(core.FunctionCall, core.Message, error),
) {
	n := len(fnCalls)
	if n == 0 {
		return
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		msg, err := e.executeSingle(runCtx, agent, registry, fnCalls[0])
		emit(fnCalls[0], msg, err)
		return
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]fnResult, n) // used only if PreserveOrder
	var mu sync.Mutex              // protects unordered emit & results writes
	var wg sync.WaitGroup

	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range fnCalls {
		if runCtx.Err() != nil { // pre-check cancellation
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			msg, err := e.executeSingle(runCtx, agent, registry, fc)

			mu.Lock()
			defer mu.Unlock()
			if e.cfg.PreserveOrder {
				results[idx] = fnResult{done: true, msg: msg, err: err}
				return
			}
			emit(fc, msg, err)
		}(i, fnCalls[i])
	}

	wg.Wait()

	if e.cfg.PreserveOrder {
		for i := 0; i < n; i++ {
			if !results[i].done {
				continue
			}
			emit(fnCalls[i], results[i].msg, results[i].err)
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
}

// executeSingle runs one call under the per-call timeout and converts its
// outcome, including a recovered panic, into a tool-result message.
func (e *parallelFunctionExecutor) executeSingle(
	runCtx *core.RunContext,
	agent FlowAgent,
	registry *tool.Registry,
	fc core.FunctionCall,
) (core.Message, error) {
	callCtx := runCtx
	timeout := e.cfg.Timeout
	if impl, ok := registry.Get(fc.Name); ok && tool.IsDelegate(impl) {
		timeout = e.cfg.DelegateTimeout
	}
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(runCtx.Context, timeout)
		defer cancel()
		callCtx = runCtx.WithContext(ctx)
	}

	toolCtx := core.NewToolContext(callCtx, fc.ID)
	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", agent.GetName(), "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "agent", agent.GetName(), "function", fc.Name, "recover", fmt.Sprint(r))
			}
		}()
		result, err = executeTool(registry, toolCtx, fc.Name, fc.Arguments)
	}()

	logging.LogToolCall(runCtx.Logger(), fc.Name, time.Since(start), err)
	runCtx.LogDebug("agent.function.executed", "agent", agent.GetName(), "function", fc.Name, "function_call_id", fc.ID)

	if err != nil {
		return core.NewToolResultMessage(fc.ID, fc.Name, nil, err), err
	}
	return core.NewToolResultMessage(fc.ID, fc.Name, result, nil), nil
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// IsPanic reports whether err originates from a recovered panic.
func IsPanic(err error) bool {
	var p *panicErr
	return errors.As(err, &p)
}

// executeTool centralizes tool lookup & execution using the agent tool registry.
func executeTool(registry *tool.Registry, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := registry.Get(toolName)
	if !ok {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("tool %s not found", toolName), tool.CodeNotFound)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			te := tool.NewToolError(toolName, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
			te.Details = err
			return nil, te
		}
	}

	return impl.Call(toolCtx, argMap)
}
