package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	attachment := slackAttachment{
		Color:  levelColor(alert.Level),
		Footer: "LLM Route Guardian",
		Ts:     time.Now().Unix(),
	}

	switch alert.Kind {
	case KindProviderDegraded:
		attachment.Title = fmt.Sprintf("LLM Route Guardian: %s degraded", target(alert))
		attachment.Fields = []slackField{
			{Title: "Provider", Value: alert.Provider, Short: true},
			{Title: "Model", Value: orDash(alert.Model), Short: true},
			{Title: "Consecutive Failures", Value: fmt.Sprintf("%d", alert.ConsecutiveFailures), Short: true},
		}
		if alert.CooldownUntil != nil {
			attachment.Fields = append(attachment.Fields, slackField{
				Title: "Cooling Until", Value: alert.CooldownUntil.UTC().Format(time.RFC3339), Short: true,
			})
		}
		if alert.LastError != "" {
			attachment.Fields = append(attachment.Fields, slackField{Title: "Last Error", Value: alert.LastError})
		}
	default:
		usage := 0.0
		if alert.LimitUSD > 0 {
			usage = alert.CurrentSpend / alert.LimitUSD * 100
		}
		attachment.Title = fmt.Sprintf("LLM Route Guardian: Budget %s", string(alert.Level))
		attachment.Fields = []slackField{
			{Title: "Budget", Value: alert.BudgetName, Short: true},
			{Title: "Period", Value: alert.Period, Short: true},
			{Title: "Current Spend", Value: fmt.Sprintf("$%.2f", alert.CurrentSpend), Short: true},
			{Title: "Limit", Value: fmt.Sprintf("$%.2f", alert.LimitUSD), Short: true},
			{Title: "Threshold", Value: fmt.Sprintf("%.0f%%", alert.ThresholdPct), Short: true},
			{Title: "Usage", Value: fmt.Sprintf("%.1f%%", usage), Short: true},
		}
	}

	payload := slackPayload{
		Channel:     s.channel,
		Text:        alert.Message,
		Attachments: []slackAttachment{attachment},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func levelColor(level AlertLevel) string {
	switch level {
	case AlertWarning, AlertDegraded:
		return "#ff9900"
	case AlertCritical:
		return "#ff0000"
	case AlertExceeded:
		return "#cc0000"
	default:
		return "#36a64f"
	}
}

func target(alert Alert) string {
	if alert.Model == "" {
		return alert.Provider
	}
	return alert.Provider + "/" + alert.Model
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
