// Package notify pushes end-of-run summaries to an ntfy topic. It is only
// wired into the daemon; CLI runs stay silent.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/run"
)

// Notifier is the interface for sending run notifications.
type Notifier interface {
	SendSuccess(ctx context.Context, result *run.Result, date string) error
	SendFailure(ctx context.Context, result *run.Result, date string, err error) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendSuccess sends a success notification.
func (c *Client) SendSuccess(ctx context.Context, result *run.Result, date string) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("Structure Run Complete: %s", date)
	message := FormatSuccessMessage(result)
	tags := c.config.Tags + ",white_check_mark"

	return c.send(ctx, title, message, tags, c.config.Priority)
}

// SendFailure sends a failure notification.
func (c *Client) SendFailure(ctx context.Context, result *run.Result, date string, err error) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("Structure Run Failed: %s", date)
	message := FormatFailureMessage(result, err)
	tags := c.config.Tags + ",x"
	priority := "high" // Override to high priority for failures

	return c.send(ctx, title, message, tags, priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// SendSuccess is a no-op.
func (n *NoopNotifier) SendSuccess(_ context.Context, _ *run.Result, _ string) error {
	return nil
}

// SendFailure is a no-op.
func (n *NoopNotifier) SendFailure(_ context.Context, _ *run.Result, _ string, _ error) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
