// Package ffprobe runs ffprobe against audio files and decodes the JSON
// report into typed container and stream metadata.
package ffprobe
