// Package session owns conversations.
//
// A Session holds the history of one (user, conversation) pair and answers
// queries against it through a supervisor agent, one query at a time. Each
// call to RunQuery returns a stream of text fragments that carries only what
// the supervisor itself says; subordinate and tool chatter stays internal.
// A failed query emits FallbackText and leaves the history untouched.
//
// A Registry maps (user, conversation) pairs to sessions with a lazy TTL.
// InMemoryRegistry is the process-local implementation; inject it where
// requests are handled instead of keeping a package-level map.
package session
