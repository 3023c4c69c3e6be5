package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/monitor"
)

const defaultWebhookTemplate = `{"alerts":{{ toJson .Alerts }},"total_bytes":{{ .TotalBytes }},"free_bytes":{{ .FreeBytes }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Alerts      []monitor.AlertEvent
	TotalBytes  int64
	FreeBytes   uint64
	GeneratedAt time.Time
}

// WebhookNotifier sends backup health alerts to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier. Reports without alerts are not delivered.
func (n *WebhookNotifier) Notify(ctx context.Context, report monitor.Report) error {
	if n == nil || len(report.Alerts) == 0 {
		return nil
	}

	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload := WebhookPayload{
		Alerts:      report.Alerts,
		TotalBytes:  report.TotalBytes,
		FreeBytes:   report.FreeBytes,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Int("alerts", len(report.Alerts)).
		Msg("webhook notification sent")

	return nil
}
