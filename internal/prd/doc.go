// Package prd turns transcripts and rolling summaries into product
// requirement documents.
//
// Generator wraps a Completer (the OpenAI-compatible llm.Client or the
// Gemini client) and owns the prompts: MiniSummary compresses a window of
// transcript, Overview folds a new summary into the running overview, and
// GeneratePRD / GeneratePRDFromSummaries request the structured Document as
// JSON. ToMarkdown renders a Document with fixed section headings.
//
// Mock mode returns canned output for every operation so demos and tests run
// without provider credentials.
package prd
