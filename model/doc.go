// Package model defines the provider-agnostic chat abstraction the
// generation layer drives, plus a scripted MockModel for tests.
//
// Providers (OpenAI, Anthropic, Ollama) live in subpackages and implement
// Model; generation.Client is the only consumer, so prompts, repair retries
// and validation stay out of the adapters.
package model
