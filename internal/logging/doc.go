// Package logging assembles structured slog loggers and formatting helpers used
// across cratesync.
//
// It owns the console and JSON handlers, routes file outputs through rotating
// lumberjack writers, and exposes context-aware helpers so reconciliation code
// can tag log lines with run IDs, mirrors, and tracks. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
