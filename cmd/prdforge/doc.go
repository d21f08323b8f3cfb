// Package main hosts the prdforge CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the HTTP API, drives the segmented
// transcription pipeline from the terminal, inspects stored projects,
// generates PRDs, serves MCP tools over stdio, and scaffolds configuration.
// It centralizes configuration resolution and logger setup so subcommands
// can focus on output instead of wiring.
//
// Keep this package lean: new behavior belongs in the internal packages
// first and is surfaced here through commands or flags.
package main
