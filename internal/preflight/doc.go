// Package preflight provides readiness checks for the filesystem paths,
// external programs and remote session cratesync depends on.
//
// These checks run in two contexts:
//   - The daemon runtime calls RunAll at startup and logs every failure.
//   - The CLI "cratesync status" command renders the same results next to
//     the mapping counts.
package preflight
