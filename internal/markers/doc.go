// Package markers carries Serato cue, beatgrid and analysis data plus a small
// set of descriptive tags from one audio file to another.
//
// Three container families are supported: ID3v2 (MP3, raw GEOB blobs), Vorbis
// comments (FLAC/Ogg, base64 text fields) and MP4 freeform atoms (M4A, base64
// text wrapped in a MIME header). Extraction normalizes every container to the
// same Markers map so a transplant between formats is a plain copy.
package markers
