// Package staging manages the directory the downloader writes into: it
// detects newly downloaded audio by snapshot diff, finds files left over from
// earlier runs, and clears abandoned partial downloads.
package staging
