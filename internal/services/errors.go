package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool   = errors.New("external tool error")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrMalformed      = errors.New("malformed data")
	ErrSearchMiss     = errors.New("no remote match")
	ErrDownload       = errors.New("download failed")
	ErrRemoteStale    = errors.New("remote reference stale")
	ErrInterrupted    = errors.New("interrupted")
	ErrAuthentication = errors.New("authentication failed")
	ErrTimeout        = errors.New("timeout")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort a whole sync or recover pass.
// Everything except authentication and cancellation is isolated to the track
// or mirror that produced it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrInterrupted)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
