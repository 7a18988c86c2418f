package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notification is the parent-notify payload emitted when a student's
// attendance is marked. The worker delivers it to the notification gateway.
type Notification struct {
	TenantID    string    `json:"tenant_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Status      string    `json:"status"`
	Mode        string    `json:"mode"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client calls the external notification gateway (SMS/push fan-out lives
// there, not here). With Skip set, deliveries are mocked for local dev.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a gateway client.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one notification. Failures are the caller's to log; the
// pipeline is fire-and-forget end to end.
func (c *Client) Send(ctx context.Context, n Notification) error {
	if c.Skip {
		return nil
	}
	body, _ := json.Marshal(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify gateway error %s: %s", resp.Status, string(msg))
	}
	return nil
}

// Health checks gateway availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify gateway unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify gateway unhealthy: %s", resp.Status)
	}
	return nil
}
