package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voxbox/internal/config"
)

const userAgent = "VoxBox-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyJobArchived(ctx context.Context, title, outputPath string) error
	NotifyJobFailed(ctx context.Context, videoID string, err error) error
	NotifyAuthorizationExpired(ctx context.Context, accountID string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
}

func (n *ntfyService) NotifyJobArchived(ctx context.Context, title, outputPath string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	message := fmt.Sprintf("Note archived: %s", title)
	if outputPath = strings.TrimSpace(outputPath); outputPath != "" {
		message = fmt.Sprintf("%s\nFolder: %s", message, outputPath)
	}
	data := payload{
		title:   "VoxBox - Note Ready",
		message: message,
		tags:    []string{"voxbox", "note", "archived"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, videoID string, err error) error {
	var builder strings.Builder
	builder.WriteString("Processing failed")
	if videoID = strings.TrimSpace(videoID); videoID != "" {
		builder.WriteString(" for ")
		builder.WriteString(videoID)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "VoxBox - Failed",
		message:  builder.String(),
		tags:     []string{"voxbox", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAuthorizationExpired(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	message := "Dropbox authorization expired; remote polling is paused until reauthorized"
	if accountID != "" {
		message = fmt.Sprintf("Dropbox authorization expired for %s; remote polling is paused until reauthorized", accountID)
	}
	data := payload{
		title:    "VoxBox - Reauthorization Needed",
		message:  message,
		tags:     []string{"voxbox", "oauth", "expired"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "VoxBox - Test",
		message:  "Notification system test",
		tags:     []string{"voxbox", "test"},
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

func (noopService) NotifyJobArchived(context.Context, string, string) error  { return nil }
func (noopService) NotifyJobFailed(context.Context, string, error) error     { return nil }
func (noopService) NotifyAuthorizationExpired(context.Context, string) error { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
