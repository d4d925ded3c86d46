// Package core provides the foundational domain types, interfaces and execution
// contexts used by agentrouter. It defines the core abstractions for:
//
//   - Messages (role-tagged turns with optional tool calls / tool results)
//   - History trimming and token-budget filtering that keep tool linkage intact
//   - Events (speaker-tagged records multiplexed from nested agent runs)
//   - RunContext / ToolContext (scoped execution, step budget, tool sandboxing)
//   - TurnConfig (typed per-call time and timezone annotation)
//   - Checkpointer (model-side memory keyed by thread identity)
//
// The package keeps implementation concerns (model vendors, concrete agents,
// session lifecycle) out of scope, exposing small interfaces to enable custom
// backends and extensions.
package core
