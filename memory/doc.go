// Package memory contains concrete core.Checkpointer implementations. The
// contract itself lives in the core package; select an implementation (like
// the in-memory store below) at wiring time.
//
// A checkpointer keeps the private transcript of every subordinate agent per
// thread, so a specialist remembers identifiers it was given earlier in the
// same conversation even though the supervisor only passes it a single query.
package memory
