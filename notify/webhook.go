// Package notify delivers messages to Discord-compatible chat webhooks.
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

	"github.com/onnwee/stream-notifier/monitor"
)

// maxErrorBody bounds how much of a rejected response is kept in the error.
const maxErrorBody = 512

type payload struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Content   string `json:"content"`
}

// Webhook implements monitor.Sink with a JSON POST per message.
type Webhook struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhook returns a sink. timeout bounds each request; zero means the
// client's own timeout applies.
func NewWebhook(client *http.Client, timeout time.Duration) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{client: client, timeout: timeout}
}

// Send posts msg to destination. Any non-2xx response is an error wrapping
// monitor.ErrSinkDelivery. The destination URL is never included in errors
// since it embeds the webhook secret.
func (w *Webhook) Send(ctx context.Context, destination string, msg monitor.Message) error {
	if destination == "" {
		return fmt.Errorf("%w: empty destination", monitor.ErrSinkDelivery)
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	b, err := json.Marshal(payload{Username: msg.DisplayName, AvatarURL: msg.AvatarURL, Content: msg.Body})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: build request", monitor.ErrSinkDelivery)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", monitor.ErrSinkDelivery, redact(err, destination))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", monitor.ErrSinkDelivery, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// redact strips the destination from transport errors, which quote the URL.
func redact(err error, destination string) string {
	return strings.ReplaceAll(err.Error(), destination, "<webhook>")
}
