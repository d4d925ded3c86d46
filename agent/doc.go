// Package agent contains the model-driven agent implementation and the
// supervisor wiring used by agentrouter. The package focuses on three
// concerns:
//
//  1. Identity and subordinate bookkeeping (BaseAgent)
//  2. Instruction sources, static or resolved per run (Instruction)
//  3. Model-centric tool-calling agent (ModelAgent) and its supervisor
//     variant that exposes subordinates as delegate tools (NewSupervisor)
//
// Execution Model:
//   - An agent's Run receives a *core.RunContext and a history it must not mutate
//   - ModelAgent hands the history to a flow.Machine (THINK/ACT/DONE)
//   - Subordinates run on child contexts; their events are tagged SpeakerSubordinate
//
// The package keeps persistence, model specifics and tool implementations in
// their respective packages to avoid cyclic deps.
package agent
