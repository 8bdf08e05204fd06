package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender posts notification payloads as JSON to the channel URL.
type WebhookSender struct {
	httpClient *http.Client
}

// webhookPayload is the wire format posted to webhook channels.
type webhookPayload struct {
	Event      Event           `json:"event"`
	ProjectID  string          `json:"project_id"`
	Service    string          `json:"service"`
	Rule       string          `json:"rule"`
	IncidentID string          `json:"incident_id"`
	Severity   string          `json:"severity"`
	Summary    string          `json:"summary"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewWebhookSender creates a webhook sender with a bounded request timeout.
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts the payload to the channel URL. Any 2xx status is success.
func (w *WebhookSender) Send(ctx context.Context, url string, req *Request) error {
	payload := webhookPayload{
		Event:      req.Event,
		ProjectID:  req.ProjectID,
		Service:    req.ServiceName,
		Rule:       req.RuleName,
		IncidentID: req.IncidentID,
		Severity:   string(req.Severity),
		Summary:    req.Summary,
		OccurredAt: req.OccurredAt.UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close is a no-op.
func (w *WebhookSender) Close() error {
	return nil
}
