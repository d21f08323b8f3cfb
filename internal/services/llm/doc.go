// Package llm provides an OpenAI-compatible chat completion client used for
// rolling summaries, overviews, and PRD generation.
//
// DeepSeek and OpenAI speak the same /chat/completions protocol, so one
// client serves both; the provider name only labels errors. Prompt carries
// the system/user text plus sampling settings, and JSON requests the
// json_object response format.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 3
// attempts by default). Context cancellation aborts retries immediately.
// Other non-2xx responses surface as *services.UpstreamError so the API can
// map quota, key, and rate-limit failures to HTTP statuses.
//
// # JSON Decoding
//
// DecodeLLMJSON tolerates code fences and prose around the JSON payload.
package llm
