// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside agentrouter.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Speak core.Message on both sides so tool linkage survives provider hops
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate scripted mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (agents, flows) remain decoupled from vendor SDKs.
package model
