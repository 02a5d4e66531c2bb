// Package reconcile drives the two-way reconciliation between Serato crates
// and Tidal playlists.
//
// The Engine owns no state of its own: the mapping store holds every track
// and mirror row, crates live on disk, and the remote catalog is reached
// through the Catalog interface. Each pass is sequential.
//
//   - Sync walks every active mirror: it parses the crate, ensures the remote
//     playlist exists, maps unmapped files through catalog search, adds
//     missing ids to the playlist, and records remote-only tracks as
//     placeholder mappings with pending crate additions.
//   - Recover downloads every pending_download mapping into the staging
//     directory, transplants DJ markers onto the new file, moves it into
//     place behind BACKUP- copies, and rewrites crate references.
//   - Cleanup deletes the backups left behind by Recover.
//
// Per-track and per-mirror failures are logged and recorded in the pass
// report; only authentication failures and cancellation end a pass early.
// Every step is safe to re-run, so an interrupted pass converges on retry.
package reconcile
