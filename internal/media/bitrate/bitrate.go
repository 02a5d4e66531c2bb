// Package bitrate determines the bitrate of an audio file in kbps.
package bitrate

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.senan.xyz/taglib"

	"cratesync/internal/config"
	"cratesync/internal/logging"
	"cratesync/internal/media/ffprobe"
)

// PropertiesFunc returns the audio bitrate in kbps reported by a tag library.
type PropertiesFunc func(path string) (int, error)

func taglibBitrate(path string) (int, error) {
	props, err := taglib.ReadProperties(path)
	if err != nil {
		return 0, err
	}
	return int(props.Bitrate), nil
}

// Prober probes bitrates with ffprobe, falling back to TagLib and finally to
// an assumed rate for lossless FLAC files.
type Prober struct {
	binary         string
	run            ffprobe.Runner
	properties     PropertiesFunc
	assumeLossless int
	logger         *slog.Logger
}

// Option customizes a Prober.
type Option func(*Prober)

// WithRunner replaces the ffprobe subprocess runner.
func WithRunner(run ffprobe.Runner) Option {
	return func(p *Prober) { p.run = run }
}

// WithProperties replaces the TagLib fallback.
func WithProperties(fn PropertiesFunc) Option {
	return func(p *Prober) { p.properties = fn }
}

// NewProber builds a Prober from configuration.
func NewProber(cfg *config.Config, logger *slog.Logger, opts ...Option) *Prober {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Prober{
		binary:         cfg.FFprobeBinary(),
		run:            ffprobe.ExecRunner,
		properties:     taglibBitrate,
		assumeLossless: cfg.Recovery.AssumeLosslessBitrate,
		logger:         logging.NewComponentLogger(logger, "bitrate"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bitrate returns the bitrate of path in kbps. The boolean is false when no
// source could report a positive value.
func (p *Prober) Bitrate(ctx context.Context, path string) (int, bool) {
	result, err := ffprobe.Inspect(ctx, p.run, p.binary, path)
	if err != nil {
		p.logger.Debug("ffprobe failed", logging.String("path", path), logging.Error(err))
	} else if result.AudioStreamCount() == 0 {
		p.logger.Debug("ffprobe found no audio stream", logging.String("path", path))
	} else {
		if bps := result.BitRate(); bps > 0 {
			return toKbps(bps), true
		}
		if bps := result.AudioBitRate(); bps > 0 {
			return toKbps(bps), true
		}
		if bps := estimateFromSize(path, result.DurationSeconds()); bps > 0 {
			return toKbps(bps), true
		}
	}

	if p.properties != nil {
		kbps, err := p.properties(path)
		if err != nil {
			p.logger.Debug("taglib properties failed", logging.String("path", path), logging.Error(err))
		} else if kbps > 0 {
			return kbps, true
		}
	}

	if p.assumeLossless > 0 && strings.EqualFold(filepath.Ext(path), ".flac") {
		p.logger.Debug("assuming lossless bitrate",
			logging.String("path", path),
			logging.Int("kbps", p.assumeLossless),
		)
		return p.assumeLossless, true
	}
	return 0, false
}

// estimateFromSize derives an average bitrate from file size and duration.
func estimateFromSize(path string, seconds float64) int64 {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return 0
	}
	return int64(float64(info.Size()*8) / seconds)
}

func toKbps(bps int64) int {
	return int((bps + 500) / 1000)
}
