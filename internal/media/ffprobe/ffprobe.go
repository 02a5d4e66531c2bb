package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"cratesync/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Runner executes a binary and returns its standard output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// ExecRunner runs the binary as a subprocess.
func ExecRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Inspect runs ffprobe against path and decodes the JSON report. A nil run
// uses ExecRunner.
func Inspect(ctx context.Context, run Runner, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	if run == nil {
		run = ExecRunner
	}

	output, err := run(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-select_streams", "a", "-of", "json", "--", path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "bitrate", "ffprobe", path, err)
	}
	return Parse(output)
}

// Parse decodes an ffprobe JSON report.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	return nonNegative(parseFloat(r.Format.BitRate))
}

// AudioBitRate returns the first audio stream's bitrate in bits per second,
// or 0 when no stream reports one.
func (r Result) AudioBitRate() int64 {
	for _, stream := range r.Streams {
		if stream.CodecType != "" && !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		if rate := nonNegative(parseFloat(stream.BitRate)); rate > 0 {
			return rate
		}
	}
	return 0
}

func nonNegative(v float64) int64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return int64(v)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
