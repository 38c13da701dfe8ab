package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notifier is the interface for sending run-complete notifications.
type Notifier interface {
	SendSuccess(ctx context.Context, summary RunSummary, duration time.Duration) error
	SendFailure(ctx context.Context, summary RunSummary, duration time.Duration, err error) error
}

// ntfy priority levels, lowest first.
var priorities = []string{"min", "low", "default", "high", "urgent"}

func priorityLevel(name string) int {
	for i, p := range priorities {
		if p == name {
			return i + 1
		}
	}
	return 3
}

// raise returns level bumped by n, capped at urgent.
func raise(level, n int) int {
	return min(level+n, len(priorities))
}

// publication is the body of an ntfy JSON publish request.
type publication struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority"`
}

// Client publishes run summaries to an ntfy server.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     cfg,
		logger:     logger,
	}
}

// SendSuccess reports a run that ended normally. A run with failed or
// malformed frames is reported as degraded at a raised priority.
func (c *Client) SendSuccess(ctx context.Context, summary RunSummary, duration time.Duration) error {
	if !c.config.Enabled {
		return nil
	}

	level := priorityLevel(c.config.Priority)
	pub := publication{
		Title:    fmt.Sprintf("Run Complete: %d/%d frames", summary.Succeeded, summary.Frames),
		Message:  FormatSuccessMessage(summary, duration),
		Tags:     c.tags("white_check_mark"),
		Priority: level,
	}

	if summary.Degraded() {
		pub.Title = fmt.Sprintf("Run Degraded: %d/%d frames, %d failed", summary.Succeeded, summary.Frames, summary.Failed+summary.Malformed)
		pub.Tags = c.tags("warning")
		pub.Priority = raise(level, 1)
	}
	return c.publish(ctx, pub)
}

// SendFailure reports a run that ended with an error. It is always at least
// high priority, and urgent when no frame was processed at all.
func (c *Client) SendFailure(ctx context.Context, summary RunSummary, duration time.Duration, err error) error {
	if !c.config.Enabled {
		return nil
	}

	level := max(priorityLevel(c.config.Priority), priorityLevel("high"))
	title := fmt.Sprintf("Run Failed after %d frames", summary.Frames)
	if summary.Frames == 0 {
		level = priorityLevel("urgent")
		title = "Run Failed before any frame"
	}

	return c.publish(ctx, publication{
		Title:    title,
		Message:  FormatFailureMessage(summary, duration, err),
		Tags:     c.tags("x"),
		Priority: level,
	})
}

func (c *Client) tags(status string) []string {
	var tags []string
	for _, t := range strings.Split(c.config.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return append(tags, status)
}

// publish posts pub to the server root, which routes it by its topic field.
func (c *Client) publish(ctx context.Context, pub publication) error {
	pub.Topic = c.config.Topic
	body, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	url := strings.TrimSuffix(c.config.Server, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("topic", pub.Topic),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", pub.Title), zap.Int("priority", pub.Priority))
	return nil
}

// NoopNotifier is used when notifications are disabled.
type NoopNotifier struct{}

func (n *NoopNotifier) SendSuccess(_ context.Context, _ RunSummary, _ time.Duration) error {
	return nil
}

func (n *NoopNotifier) SendFailure(_ context.Context, _ RunSummary, _ time.Duration, _ error) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
