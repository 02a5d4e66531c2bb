package crate

import (
	"fmt"
	"strings"

	"cratesync/internal/services"
)

// ErrInvalidPath marks track locations the codec will not interpret.
var ErrInvalidPath = fmt.Errorf("%w: unsupported track path", services.ErrValidation)

// NormalizePath returns the mapping key for a track location: the path with a
// single leading "/" removed. Serato already stores locations in that form, so
// separator-less input is accepted unchanged. Windows-style locations
// (backslashes or a drive prefix) are rejected instead of guessed at.
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsRune(path, '\\') || hasDrivePrefix(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	key := strings.TrimPrefix(path, "/")
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return key, nil
}

func hasDrivePrefix(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}
	c := path[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
