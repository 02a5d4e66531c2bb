// Package services defines shared utilities consumed by the reconciliation
// engine and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, mirrors, and tracks for
//     logging.
//   - Structured error markers plus the Wrap helper so per-track and
//     per-mirror failures can be classified without string matching.
//
// Subpackages hold the Tidal catalog client and the tidal-dl-ng downloader.
package services
