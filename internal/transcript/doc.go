// Package transcript holds the speaker-attributed spans produced by the
// recognizers and the small state machines built on them: merging adjacent
// spans from one speaker, shifting spans by a segment offset, folding a
// stream of intermediate and final events into text, and deciding when a
// rolling summary is due.
package transcript
