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

// sendTimeout bounds one webhook call.
const sendTimeout = 10 * time.Second

// Alert is one rendered notification.
type Alert struct {
	Event   string
	Title   string
	Message string
	At      time.Time
}

// Critical reports whether the alert should be rendered as an incident.
func (a Alert) Critical() bool {
	return a.Event == EventIntegrityViolation || a.Event == EventError
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// postJSON posts payload and treats any non-2xx response as an error. Up to
// 1 KiB of the response body is quoted in the error.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
