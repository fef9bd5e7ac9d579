package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfeidau/beacon/internal/models"
)

// WebhookChannel posts messages as JSON to an SMS/voice gateway. The gateway
// owns the actual transport; any 2xx response counts as delivered.
type WebhookChannel struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// NewWebhookChannel returns a channel posting to url. The per-attempt timeout
// is imposed by the caller's context, so the HTTP client has none of its own.
func NewWebhookChannel(url, apiKey string) *WebhookChannel {
	return &WebhookChannel{
		URL:        url,
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

type webhookPayload struct {
	To       string  `json:"to"`
	Name     string  `json:"name"`
	Primary  bool    `json:"primary"`
	Message  Message `json:"message"`
	Priority string  `json:"priority"`
}

// Deliver posts the message for one contact.
func (c *WebhookChannel) Deliver(ctx context.Context, contact models.EmergencyContact, msg Message) error {
	raw, err := json.Marshal(webhookPayload{
		To:       contact.Phone,
		Name:     contact.Name,
		Primary:  contact.IsPrimary,
		Message:  msg,
		Priority: "emergency",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// Gateways deduplicate retries on this key
	req.Header.Set("Idempotency-Key", msg.DedupKey)
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: request failed status=%d body=%s", resp.StatusCode, string(b))
	}

	return nil
}
