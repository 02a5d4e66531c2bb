package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cratesync/internal/config"
)

const userAgent = "cratesync/1.0"

// SyncSummary is the part of a sync pass worth telling the user about.
type SyncSummary struct {
	Mirrors       int
	FailedMirrors int
	Added         int
	Missing       int
	Scheduled     int
}

// Changed reports whether the pass did anything visible.
func (s SyncSummary) Changed() bool {
	return s.Added > 0 || s.Missing > 0 || s.Scheduled > 0 || s.FailedMirrors > 0
}

// RecoverSummary counts recover outcomes.
type RecoverSummary struct {
	Restored int
	Imported int
	Failed   int
}

// Changed reports whether the pass handled any track.
func (s RecoverSummary) Changed() bool {
	return s.Restored+s.Imported+s.Failed > 0
}

// Service defines the notification surface used by the daemon and CLI.
type Service interface {
	NotifySyncCompleted(ctx context.Context, summary SyncSummary) error
	NotifyRecoverCompleted(ctx context.Context, summary RecoverSummary) error
	NotifyError(ctx context.Context, err error, stage string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		idle:     cfg.Notifications.NotifyIdle,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	idle     bool
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, s SyncSummary) error {
	if !s.Changed() && !n.idle {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d crate(s) synced", s.Mirrors)
	if s.Added > 0 {
		fmt.Fprintf(&b, "\n%d track(s) added to playlists", s.Added)
	}
	if s.Missing > 0 {
		fmt.Fprintf(&b, "\n%d local file(s) missing, queued for download", s.Missing)
	}
	if s.Scheduled > 0 {
		fmt.Fprintf(&b, "\n%d remote-only track(s) queued", s.Scheduled)
	}
	data := payload{
		title:   "cratesync - Sync Complete",
		message: b.String(),
		tags:    []string{"cratesync", "sync"},
	}
	if s.FailedMirrors > 0 {
		fmt.Fprintf(&b, "\n%d crate(s) failed", s.FailedMirrors)
		data.message = b.String()
		data.tags = append(data.tags, "warning")
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecoverCompleted(ctx context.Context, s RecoverSummary) error {
	if !s.Changed() && !n.idle {
		return nil
	}
	data := payload{
		title:   "cratesync - Recover Complete",
		message: fmt.Sprintf("%d restored, %d imported, %d failed", s.Restored, s.Imported, s.Failed),
		tags:    []string{"cratesync", "recover"},
	}
	if s.Failed > 0 {
		data.tags = append(data.tags, "warning")
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, stage string) error {
	if err == nil {
		return nil
	}
	var b strings.Builder
	if stage = strings.TrimSpace(stage); stage != "" {
		fmt.Fprintf(&b, "Stage: %s\n", stage)
	}
	b.WriteString(err.Error())
	data := payload{
		title:    "cratesync - Error",
		message:  b.String(),
		tags:     []string{"cratesync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "cratesync - Test",
		message:  "Notification system test",
		tags:     []string{"cratesync", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncCompleted(context.Context, SyncSummary) error       { return nil }
func (noopService) NotifyRecoverCompleted(context.Context, RecoverSummary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
