package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/events"
	"lectern/internal/queue"
)

// Client talks to a running lectern daemon over its loopback HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient constructs a client for the given bind address.
func NewClient(bind, token string) *Client {
	base := bind
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Ping reports whether the daemon answers.
func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.Status(ctx)
	return err == nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches all jobs in queue order.
func (c *Client) List(ctx context.Context) ([]queue.Job, error) {
	var out QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Add enqueues submissions and returns the created jobs.
func (c *Client) Add(ctx context.Context, submissions []Submission) ([]queue.Job, error) {
	var out AddResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue", AddRequest{Submissions: submissions}, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Get fetches one job.
func (c *Client) Get(ctx context.Context, id string) (*queue.Job, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// Remove deletes one job.
func (c *Client) Remove(ctx context.Context, id string) (bool, error) {
	var out RemoveResponse
	if err := c.do(ctx, http.MethodDelete, "/api/queue/"+id, nil, &out); err != nil {
		return false, err
	}
	return out.Removed, nil
}

// Retry resets a failed or cancelled job to pending.
func (c *Client) Retry(ctx context.Context, id string) (*queue.Job, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue/"+id+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// ClearCompleted sweeps completed jobs.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var out ClearCompletedResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue/clear-completed", nil, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// CancelCurrent signals the in-flight job, if any.
func (c *Client) CancelCurrent(ctx context.Context) (bool, error) {
	var out CancelResponse
	if err := c.do(ctx, http.MethodPost, "/api/processor/cancel", nil, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// StartProcessor resumes the loop.
func (c *Client) StartProcessor(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/processor/start", nil, &ProcessorResponse{})
}

// StopProcessor pauses the loop after its current iteration.
func (c *Client) StopProcessor(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/processor/stop", nil, &ProcessorResponse{})
}

// Events follows the daemon's SSE stream, invoking handler per event until
// the context ends or the stream closes.
func (c *Client) Events(ctx context.Context, handler func(events.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return fmt.Errorf("build events request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout on a long-lived stream; the context bounds it.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream rejected: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event events.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		handler(event)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return ctx.Err()
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
