package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"linaro/webforms/internal/config"
)

// Alerter raises operator attention for failures no retry can fix, such as a
// verified submission whose ticket could not be created.
type Alerter interface {
	Alert(ctx context.Context, summary string, details map[string]interface{})
}

// WebhookAlerter posts alerts as JSON to a configured webhook. Delivery is
// best-effort; alerting must never take the request path down with it.
type WebhookAlerter struct {
	url        string
	httpClient *http.Client
}

// NewWebhookAlerter creates a WebhookAlerter.
func NewWebhookAlerter(cfg *config.Config) *WebhookAlerter {
	return &WebhookAlerter{
		url:        cfg.AlertWebhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *WebhookAlerter) Alert(ctx context.Context, summary string, details map[string]interface{}) {
	payload := map[string]interface{}{
		"summary": summary,
		"details": details,
		"at":      time.Now().UTC().Format(time.RFC3339),
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ALERT (marshal failed, logging only): %s %v", summary, details)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.url, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Printf("ALERT (request build failed, logging only): %s", summary)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.Printf("ALERT webhook delivery failed: %v. Alert was: %s %v", err, summary, details)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("ALERT webhook returned status %d. Alert was: %s %v", resp.StatusCode, summary, details)
	}
}

// LogAlerter writes alerts to the process log. Used when no webhook is
// configured.
type LogAlerter struct{}

func (a *LogAlerter) Alert(ctx context.Context, summary string, details map[string]interface{}) {
	log.Printf("ALERT: %s %v", summary, details)
}

// NewAlerter picks the backend from configuration.
func NewAlerter(cfg *config.Config) Alerter {
	if cfg.AlertWebhookURL != "" {
		return NewWebhookAlerter(cfg)
	}
	return &LogAlerter{}
}
