package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	maxLineBytes    = 1024 * 1024
	defaultInterval = 250 * time.Millisecond
)

// Filter keeps lines containing every non-empty term.
type Filter []string

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	for _, term := range f {
		if term != "" && !strings.Contains(line, term) {
			return false
		}
	}
	return true
}

// Last returns up to limit trailing lines of path that pass filter, and the
// offset just past the end of the file. A missing file yields no lines.
func Last(path string, limit int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	offset, err := scanLines(file, func(line string) {
		if !filter.Match(line) {
			return
		}
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%limit])
	}
	return lines, offset, nil
}

// Follow polls path from offset and calls emit for each new line that passes
// filter until ctx ends. It returns nil when ctx is cancelled.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string)) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scanLines(file, func(line string) {
		if filter.Match(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scanLines feeds complete lines to fn and returns the number of bytes they
// covered. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			if len(line) <= maxLineBytes {
				fn(strings.TrimRight(line, "\r\n"))
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}
