// Package preflight provides readiness checks for the tools, directories,
// and external services prdforge depends on.
//
// These checks run in two contexts:
//   - "prdforge serve" runs RunAll at startup and logs a warning for each
//     failed check. The server still starts; routes that need a missing
//     dependency fail at request time with a classified error.
//   - "prdforge doctor" prints every result and exits non-zero when any
//     check fails.
//
// Checks for optional features are skipped when the feature is not
// configured (for example the Redis check without summary.redis_addr).
package preflight
