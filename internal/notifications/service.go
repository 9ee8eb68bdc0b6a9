package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/queue"
)

const userAgent = "Lectern/0.1.0"

// Service defines the notification surface used by the processing loop.
type Service interface {
	NotifyJobCompleted(ctx context.Context, job *queue.Job) error
	NotifyJobFailed(ctx context.Context, job *queue.Job, message string) error
	NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error
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
		jobs:     cfg.Notifications.Jobs,
		queue:    cfg.Notifications.Queue,
		errors:   cfg.Notifications.Errors,
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
	jobs     bool
	queue    bool
	errors   bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, job *queue.Job) error {
	if !n.jobs {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Lectern - Notes Ready",
		message: fmt.Sprintf("Finished processing %s", job.OriginalName),
		tags:    []string{"lectern", "job", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job *queue.Job, message string) error {
	if !n.errors {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Lectern - Processing Failed",
		message:  fmt.Sprintf("%s: %s", job.OriginalName, message),
		tags:     []string{"lectern", "job", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.queue {
		return nil
	}
	return n.send(ctx, payload{
		title: "Lectern - Queue Drained",
		message: fmt.Sprintf("Processed %d job(s), %d failed, in %s",
			processed, failed, duration.Round(time.Second)),
		tags: []string{"lectern", "queue", "drained"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "Lectern - Test",
		message: "Notifications are configured correctly",
		tags:    []string{"lectern", "test"},
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, *queue.Job) error { return nil }
func (noopService) NotifyJobFailed(context.Context, *queue.Job, string) error {
	return nil
}
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
