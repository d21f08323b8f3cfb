// Package pipeline orchestrates the transcription flows behind the HTTP API
// and the CLI.
//
// Every flow is a producer that returns a receive-only Event channel and
// closes it when the flow ends. Consumers cancel through the context they
// pass to Run; the producer stops between steps, releases what it acquired,
// and closes the channel. Flows never run work in parallel: segments are
// handled strictly in order, one upload/transcribe/summarize cycle at a time.
//
// External systems are reached through the small capability interfaces in
// capabilities.go so tests can substitute spies for storage, recognizers, and
// the summarizer.
package pipeline
