package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Discord posts events to a Discord webhook.
type Discord struct {
	WebhookURL string
	Client     *http.Client
}

func (d Discord) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Notify posts evt.Text as the message content. Anything but 204 No Content
// is an error.
func (d Discord) Notify(ctx context.Context, evt Event) error {
	if d.WebhookURL == "" {
		return errors.New("discord webhook url is required")
	}
	body, err := json.Marshal(map[string]string{"content": evt.Text})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	// Discord answers 204 when the message was accepted.
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord returned status %s", resp.Status)
	}
	return nil
}
