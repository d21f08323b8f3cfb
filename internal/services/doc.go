// Package services defines shared utilities consumed by the transcription
// pipeline, the HTTP API, and the external provider clients.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, stage names, segment indexes,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (configuration, upstream, timeout) with errors.Is.
//   - Classify, which maps an error to the HTTP status and user-facing
//     suggestion returned by the public endpoints.
package services
