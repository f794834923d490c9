package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/domain"
)

// DefaultWebhookTimeout bounds one outbound delivery so a hung endpoint
// cannot stall the scheduler or a request path.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookClient posts event envelopes to configured integration endpoints.
type WebhookClient struct {
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewWebhookClient(timeout time.Duration, logger zerolog.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookClient{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "webhook").Logger(),
		now:    time.Now,
	}
}

type webhookEnvelope struct {
	EventType string         `json:"eventType"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Deliver posts one envelope to cfg.WebhookURL, attaching the integration's
// API key as a bearer token when present. Any transport or non-2xx outcome
// is returned as an error for the caller to record, never as a panic.
func (c *WebhookClient) Deliver(ctx context.Context, cfg domain.IntegrationConfig, eventType string, payload map[string]any) error {
	if cfg.WebhookURL == "" {
		return fmt.Errorf("integration has no webhook url")
	}
	body, err := json.Marshal(webhookEnvelope{
		EventType: eventType,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	c.logger.Debug().Str("url", cfg.WebhookURL).Str("event_type", eventType).Msg("webhook delivered")
	return nil
}
