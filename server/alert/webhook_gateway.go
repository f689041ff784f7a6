package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebhookGateway POSTs a JSON alert to the destination URL. Receivers can
// deduplicate on the X-Event-ID header.
type WebhookGateway struct {
	httpClient *http.Client
}

type webhookPayload struct {
	EventID string    `json:"event_id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func NewWebhookGateway(timeout time.Duration) *WebhookGateway {
	return &WebhookGateway{httpClient: &http.Client{Timeout: timeout}}
}

func (g *WebhookGateway) Name() string { return "webhook" }

func (g *WebhookGateway) Send(ctx context.Context, destination, message, eventID string) error {
	if destination == "" {
		return Permanent(errors.New("webhook url is empty"))
	}

	body, err := json.Marshal(webhookPayload{EventID: eventID, Message: message, SentAt: time.Now().UTC()})
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", eventID)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse("webhook", resp)
}
