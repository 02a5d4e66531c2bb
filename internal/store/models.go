package store

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a track mapping.
type Status string

const (
	StatusSynced          Status = "synced"
	StatusPendingDownload Status = "pending_download"
	StatusPendingCleanup  Status = "pending_cleanup"
	StatusFailed          Status = "failed"
)

var allStatuses = []Status{
	StatusSynced,
	StatusPendingDownload,
	StatusPendingCleanup,
	StatusFailed,
}

// AllStatuses returns the closed set of mapping statuses in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a raw value into a Status, rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range allStatuses {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown track status %q", raw)
}

// DirectionBidirectional is the only sync direction currently implemented.
const DirectionBidirectional = "bidirectional"

const placeholderPrefix = "REMOTE_IMPORT:"

// PlaceholderKey returns the synthetic mapping key for a remote-only track.
func PlaceholderKey(remoteID string) string {
	return placeholderPrefix + remoteID
}

// IsPlaceholder reports whether key is a remote-only placeholder key.
func IsPlaceholder(key string) bool {
	return strings.HasPrefix(key, placeholderPrefix)
}

// PlaceholderRemoteID extracts the remote id from a placeholder key.
func PlaceholderRemoteID(key string) (string, bool) {
	if !IsPlaceholder(key) {
		return "", false
	}
	return strings.TrimPrefix(key, placeholderPrefix), true
}

// Track is one row of the mapping table.
type Track struct {
	ID             int64
	LocalPath      string
	RemoteID       string
	ISRC           string
	Bitrate        int
	Status         Status
	DownloadedPath string
	DisplayName    string
	LastSync       time.Time
}

// IsPlaceholder reports whether the mapping stands in for a remote-only track.
func (t *Track) IsPlaceholder() bool {
	return t != nil && IsPlaceholder(t.LocalPath)
}

// TrackInfo is the cached lookup used while scanning a crate.
type TrackInfo struct {
	RemoteID string
	Bitrate  int
}

// TrackUpsert describes an insert-or-merge of one mapping. Empty strings and a
// zero bitrate mean "not supplied".
type TrackUpsert struct {
	LocalPath   string
	RemoteID    string
	ISRC        string
	Bitrate     int
	DisplayName string
	// InitialStatus applies only when the row is created; defaults to synced.
	InitialStatus Status
}

// Mirror pairs a crate with a remote playlist.
type Mirror struct {
	ID         int64
	CratePath  string
	CrateName  string
	PlaylistID string
	Direction  string
	Active     bool
}

// MirrorUpdate carries optional mirror fields. Nil fields keep the stored value
// on update and take the column default on insert.
type MirrorUpdate struct {
	CrateName  *string
	PlaylistID *string
	Direction  *string
	Active     *bool
}

// PendingAddition records that a remote-only track belongs in a crate once downloaded.
type PendingAddition struct {
	ID        int64
	RemoteID  string
	CratePath string
	CreatedAt time.Time
}
