// Package logx wraps zerolog behind a small structured-logging API with
// runtime-reconfigurable sinks (console, file).
//
// The zero-value Logger is a safe no-op, so components can log before wiring
// is complete.
package logx
