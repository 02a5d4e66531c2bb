// Package notifications publishes daemon outcomes to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled.
package notifications
