// Package logs reads the prdforge log file for `prdforge logs`.
//
// Last returns the final lines with bounded memory; Follow polls from an
// offset and emits complete lines as they are appended, restarting from the
// top when the file is truncated or replaced.
package logs
