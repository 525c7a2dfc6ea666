// Package client talks to a running memoria server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/lazypower/memoria/internal/store"
)

const httpTimeout = 5 * time.Second

// Client calls the memoria HTTP API on behalf of one user.
type Client struct {
	http      *http.Client
	serverURL string
	userID    string
}

// New creates a client for serverURL. MEMORIA_URL overrides serverURL when set.
func New(serverURL, userID string) *Client {
	if env := os.Getenv("MEMORIA_URL"); env != "" {
		serverURL = env
	}
	if !strings.Contains(serverURL, "://") {
		serverURL = "http://" + serverURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
		userID:    userID,
	}
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

// CreateReminder creates def for the client's user.
func (c *Client) CreateReminder(ctx context.Context, def reminder.Definition) (reminder.Definition, error) {
	in := map[string]any{
		"title":               def.Title,
		"description":         def.Description,
		"label":               def.Label,
		"schedule_time":       def.ScheduleTime,
		"frequency":           def.Frequency,
		"days_of_week":        def.DaysOfWeek,
		"notification_method": def.NotificationMethod,
		"is_active":           def.IsActive,
	}
	var out reminder.Definition
	err := c.do(ctx, http.MethodPost, "/api/reminders", in, &out)
	return out, err
}

// DeleteReminder deletes a reminder.
func (c *Client) DeleteReminder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/reminders/"+id, nil, nil)
}

// ToggleReminder flips a reminder's active flag.
func (c *Client) ToggleReminder(ctx context.Context, id string) (reminder.Definition, error) {
	var out reminder.Definition
	err := c.do(ctx, http.MethodPost, "/api/reminders/"+id+"/toggle", nil, &out)
	return out, err
}

// Stats returns the user's live trigger statistics.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	var out engine.Stats
	err := c.do(ctx, http.MethodGet, "/api/reminders/stats", nil, &out)
	return out, err
}

// Notifications lists the user's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]store.Notification, error) {
	path := fmt.Sprintf("/api/notifications?unread=%t&limit=%d", unreadOnly, limit)
	var out struct {
		Notifications []store.Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Notifications, err
}
