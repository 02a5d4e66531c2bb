// Package tidaldl drives the tidal-dl-ng command line downloader.
//
// The reconciliation engine only needs two things from it: point the tool at
// the staging directory with the configured quality, and fetch one track by
// id. Detecting which file appeared is left to the caller, which snapshots
// the staging directory around each download.
package tidaldl
