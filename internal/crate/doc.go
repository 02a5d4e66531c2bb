// Package crate reads and rewrites Serato crate files.
//
// A crate is a flat sequence of tagged blocks: a 4-byte ASCII tag, a 4-byte
// big-endian length, then the value. Track entries ("otrk") nest further
// blocks, one of which ("ptrk") holds the track location as UTF-16BE text
// without its leading separator.
//
// The codec functions (Parse, ReplacePath, AppendTrack) are pure: they never
// modify their input and return fresh buffers. Mutations refuse to run on a
// stream that does not parse cleanly, so a damaged crate is never made worse.
// The file helpers layer atomic writes on top.
package crate
