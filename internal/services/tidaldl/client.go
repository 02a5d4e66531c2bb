package tidaldl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"cratesync/internal/config"
	"cratesync/internal/logging"
	"cratesync/internal/services"
)

const (
	trackURLPrefix = "https://tidal.com/browse/track/"
	outputTailSize = 8
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger receiving downloader output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps tidal-dl-ng invocations.
type Client struct {
	binary     string
	quality    string
	stagingDir string
	timeout    time.Duration
	exec       Executor
	logger     *slog.Logger
}

// New constructs a downloader from the recovery configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	binary := strings.TrimSpace(cfg.Recovery.DownloaderBinary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tidaldl", "new", "recovery.downloader_binary is not set", nil)
	}
	client := &Client{
		binary:     binary,
		quality:    strings.TrimSpace(cfg.Recovery.Quality),
		stagingDir: cfg.Paths.StagingDir,
		timeout:    time.Duration(cfg.Recovery.DownloadTimeout) * time.Second,
		exec:       commandExecutor{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "tidaldl")
	return client, nil
}

// TrackURL returns the catalog URL tidal-dl-ng accepts for a track id.
func TrackURL(remoteID string) string {
	return trackURLPrefix + strings.TrimSpace(remoteID)
}

// Configure sets the audio quality and download directory in the tool's own
// settings. It is run once before a batch of downloads.
func (c *Client) Configure(ctx context.Context) error {
	settings := [][2]string{{"download_base_path", c.stagingDir}}
	if c.quality != "" {
		settings = append(settings, [2]string{"quality_audio", c.quality})
	}
	for _, kv := range settings {
		if _, err := c.run(ctx, "cfg", kv[0], kv[1]); err != nil {
			return services.Wrap(services.ErrExternalTool, "tidaldl", "configure", kv[0], err)
		}
	}
	c.logger.Debug("downloader configured",
		logging.String("staging_dir", c.stagingDir),
		logging.String("quality", c.quality),
	)
	return nil
}

// Download fetches one track into the staging directory. A nonzero exit or a
// timeout is reported as services.ErrDownload.
func (c *Client) Download(ctx context.Context, remoteID string) error {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return services.Wrap(services.ErrValidation, "tidaldl", "download", "remote id is required", nil)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tail, err := c.run(runCtx, "dl", TrackURL(remoteID))
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrInterrupted, "tidaldl", "download", remoteID, ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrDownload, "tidaldl", "download", fmt.Sprintf("%s timed out after %s", remoteID, c.timeout), err)
		}
		return services.Wrap(services.ErrDownload, "tidaldl", "download", remoteID+": "+strings.Join(tail, " | "), err)
	}
	return nil
}

// run executes the binary, logging each output line at debug level and
// returning the last few lines for error reports.
func (c *Client) run(ctx context.Context, args ...string) ([]string, error) {
	var (
		mu   sync.Mutex
		tail []string
	)
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		c.logger.Debug("tidal-dl-ng", logging.String("line", line))
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > outputTailSize {
			tail = tail[len(tail)-outputTailSize:]
		}
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), tail...), err
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
