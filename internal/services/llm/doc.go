// Package llm provides an OpenRouter-compatible chat client used to turn a
// finished transcript into draft meeting minutes.
//
// The client sends the speaker-attributed Markdown report with a fixed
// Japanese prompt: fix typos, add punctuation, summarise the key points as
// bullets and extract action items. The reply is returned as Markdown.
//
// # Configuration
//
// Requires api_key and model; base_url, referer, title and timeout are
// optional. The `[llm]` config section and OPENROUTER_API_KEY feed it.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive plain text.
// Client.DraftMinutes: draft minutes from a transcript.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty replies and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Context cancellation aborts retries immediately.
package llm
