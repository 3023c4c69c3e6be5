package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/nholik/stack-warden/internal/monitor"
)

const (
	slackMaxBlocks = 50
	// slackReservedBlocks accounts for header block + context block in each message
	slackReservedBlocks = 2
	slackMaxAlerts      = slackMaxBlocks - slackReservedBlocks
)

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier. Reports without alerts are not delivered.
func (n *SlackNotifier) Notify(ctx context.Context, report monitor.Report) error {
	if len(report.Alerts) == 0 {
		return nil
	}
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	messages := buildSlackMessages(report)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.poster.postWithRetry(ctx, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Int("alerts", len(report.Alerts)).
		Int("messages", len(messages)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessages(report monitor.Report) []slack.WebhookMessage {
	alerts := report.Alerts
	if len(alerts) == 0 {
		return nil
	}

	total := len(alerts)
	chunkTotal := (total + slackMaxAlerts - 1) / slackMaxAlerts
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxAlerts {
		end := i + slackMaxAlerts
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxAlerts) + 1
		messages = append(messages, buildSlackMessage(report, alerts[i:end], total, partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(report monitor.Report, alerts []monitor.AlertEvent, total int, partIndex int, partTotal int) slack.WebhookMessage {
	summary := fmt.Sprintf("Backup health: %d alert(s)", total)
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Storage used: *%s*", formatBytes(report.TotalBytes)), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Free: *%s*", formatBytes(int64(report.FreeBytes))), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	context := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, context}
	for _, alert := range alerts {
		blocks = append(blocks, buildAlertBlock(alert))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildAlertBlock(alert monitor.AlertEvent) slack.Block {
	subject := string(alert.Check)
	if alert.Component != "" {
		subject = fmt.Sprintf("%s / %s", alert.Component, alert.Check)
	}
	title := fmt.Sprintf("%s *%s*: %s", severityEmoji(alert.Severity), subject, alert.Message)
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)
	return slack.NewSectionBlock(text, nil, nil)
}

func severityEmoji(severity monitor.Severity) string {
	if severity == monitor.SeverityCritical {
		return ":red_circle:"
	}
	return ":warning:"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
