package reconcile

import (
	"time"

	"cratesync/internal/staging"
)

// SyncOptions tune one sync pass.
type SyncOptions struct {
	// MaxBitrate excludes tracks whose known bitrate (kbps) exceeds it; 0 disables.
	MaxBitrate int
	// ForceUpdate marks present files pending_download so Recover replaces them.
	ForceUpdate bool
}

// MirrorReport summarizes one mirror within a sync pass.
type MirrorReport struct {
	CratePath  string
	CrateName  string
	PlaylistID string

	Entries   int
	Mapped    int
	Orphaned  []string
	Invalid   int
	Filtered  int
	Missing   int
	Added     int
	Linked    int
	Scheduled int

	// Partial is set when the crate was damaged and only its readable prefix was used.
	Partial bool
	// Removed is set when the crate file vanished and the mirror was dropped.
	Removed bool
	Err     error
}

// SyncReport summarizes a sync pass.
type SyncReport struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Mirrors  []MirrorReport
}

// Failed counts mirrors that ended with an error.
func (r *SyncReport) Failed() int {
	n := 0
	for _, m := range r.Mirrors {
		if m.Err != nil {
			n++
		}
	}
	return n
}

// RecoverOptions tune one recover pass.
type RecoverOptions struct {
	// DryRun lists the planned downloads without touching disk or store.
	DryRun bool
}

// RecoverOutcome classifies how one pending track ended.
type RecoverOutcome string

const (
	OutcomeRestored RecoverOutcome = "restored"
	OutcomeImported RecoverOutcome = "imported"
	OutcomeFailed   RecoverOutcome = "failed"
)

// RecoverItem reports one pending track.
type RecoverItem struct {
	Key      string
	RemoteID string
	Outcome  RecoverOutcome
	// Path is the absolute location of the recovered file.
	Path    string
	Backups []string
	Crates  []string
	// Reused is set when a file already sitting in staging was used.
	Reused bool
	Err    error
}

// PlannedDownload is one entry of a dry-run plan.
type PlannedDownload struct {
	Key      string
	RemoteID string
	Target   string
	Command  string
}

// RecoverReport summarizes a recover pass.
type RecoverReport struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Items    []RecoverItem
	Planned  []PlannedDownload
	Stale    staging.CleanStaleResult
}

// Count returns the number of items with the given outcome.
func (r *RecoverReport) Count(outcome RecoverOutcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// CleanupReport summarizes a cleanup pass.
type CleanupReport struct {
	Deleted []string
	Missing []string
	Errors  map[string]error
}
