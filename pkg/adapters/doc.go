// Package adapters provides the provider-agnostic prompt adapter contract and
// the shared request/response/citation types all providers normalize into.
//
// Subpackages:
//   - openai
//   - anthropic
//   - gemini
//   - grok
//   - perplexity
//   - registry
package adapters
