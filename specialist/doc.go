// Package specialist assembles the concrete agent team of agentrouter: an
// order support agent backed by the order lookup API, a ClickHouse analytics
// agent that answers with SQL over a declared schema, a pull request review
// agent backed by GitHub, and the supervisor that routes between them.
package specialist
