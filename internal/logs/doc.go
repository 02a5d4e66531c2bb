// Package logs reads the cratesync log file for the `logs` command: the last
// N lines, then optionally new lines as they are appended. A file that shrinks
// below the read offset is treated as rotated and read again from the start.
package logs
