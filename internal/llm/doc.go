// Package llm extracts purchase records from email with a language model.
// It supports a local Ollama server and the OpenAI and Anthropic APIs, with
// per-attempt deadlines, retry with backoff, response caching, rate limiting
// and a latency-based fallback from the local model to a cloud provider.
package llm
