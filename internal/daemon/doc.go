// Package daemon runs cratesync unattended.
//
// A Daemon holds a flock-based single-instance lock and loops over a sync
// pass followed by a recover pass, sleeping the configured interval between
// iterations (or the shorter error retry interval after a failed one).
// Failures, including authentication errors, are logged and retried on the
// next iteration; only cancellation ends the loop.
package daemon
