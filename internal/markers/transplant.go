package markers

import (
	"errors"
	"fmt"
	"log/slog"

	"cratesync/internal/logging"
)

// Result is the outcome of a best-effort extraction.
type Result struct {
	Markers Markers
	Kind    Kind
	// OK is false when the file could not be read as any supported container.
	OK  bool
	Err error
}

// Empty reports whether nothing was extracted.
func (r Result) Empty() bool { return len(r.Markers) == 0 }

// InjectResult is the outcome of a best-effort injection.
type InjectResult struct {
	Kind     Kind
	Injected bool
	Count    int
	Err      error
}

// Transplanter moves markers between files. Its methods never return errors:
// failures are logged and reported in the result.
type Transplanter struct {
	logger  *slog.Logger
	backend backend
}

// NewTransplanter builds a Transplanter that logs through logger.
func NewTransplanter(logger *slog.Logger) *Transplanter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transplanter{
		logger:  logging.NewComponentLogger(logger, "markers"),
		backend: defaultBackend(),
	}
}

// Extract reads markers from path. Unsupported or unreadable files yield an
// empty, non-nil map.
func (t *Transplanter) Extract(path string) (res Result) {
	res.Markers = Markers{}
	defer func() {
		if r := recover(); r != nil {
			res = Result{Markers: Markers{}, Err: fmt.Errorf("extract markers: panic: %v", r)}
			t.warn("marker extraction failed", path, res.Err)
		}
	}()

	c, err := detectWith(path, t.backend)
	if err != nil {
		res.Err = err
		if !errors.Is(err, ErrUnsupported) {
			t.warn("marker extraction failed", path, err)
		}
		return res
	}
	res.Kind = c.Kind()
	m, err := c.Extract(path)
	if m != nil {
		res.Markers = m
		res.OK = true
	}
	if err != nil {
		res.Err = err
		t.warn("marker extraction incomplete", path, err)
	}
	t.logger.Debug("markers extracted",
		logging.String("path", path),
		logging.String("container", res.Kind.String()),
		logging.Int("count", len(res.Markers)),
	)
	return res
}

// Inject writes m into path. An empty map or an unsupported target is a
// no-op reported with Injected false.
func (t *Transplanter) Inject(m Markers, path string) (res InjectResult) {
	defer func() {
		if r := recover(); r != nil {
			res = InjectResult{Err: fmt.Errorf("inject markers: panic: %v", r)}
			t.warn("marker injection failed", path, res.Err)
		}
	}()

	if len(m) == 0 {
		return res
	}
	c, err := detectWith(path, t.backend)
	if err != nil {
		res.Err = err
		t.warn("marker injection skipped", path, err)
		return res
	}
	res.Kind = c.Kind()
	if err := c.Inject(path, m); err != nil {
		res.Err = err
		t.warn("marker injection failed", path, err)
		return res
	}
	res.Injected = true
	res.Count = len(m)
	t.logger.Debug("markers injected",
		logging.String("path", path),
		logging.String("container", res.Kind.String()),
		logging.Int("count", res.Count),
	)
	return res
}

func (t *Transplanter) warn(msg, path string, err error) {
	logging.WarnWithContext(t.logger, msg, "markers_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "cues and beatgrids may need to be re-analysed in Serato"),
		logging.String(logging.FieldImpact, "track keeps audio but loses transplanted markers"),
	)
}
