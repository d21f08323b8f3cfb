// Package server exposes the transcription pipelines, the project store, and
// the PRD generator over HTTP.
//
// Long-running operations answer with a text/event-stream of pipeline
// events; everything else is JSON. Browser microphones connect to /api/live
// over WebSocket. A file lock under the data directory keeps a second server
// from sharing the same database.
package server
