// Package store persists projects and their mini summaries in SQLite.
//
// A project carries the raw transcript, the rolling overview, and the
// generated PRD. Mini summaries hang off a project and are keyed by their
// recording offset in seconds; the unique (project_id, timestamp) constraint
// is what makes a summary window land at most once no matter how many
// sessions race to write it.
//
// Schema changes bump schemaVersion in schema.go. There are no migrations;
// an older database must be removed to adopt a new schema.
package store
