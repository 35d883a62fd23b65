package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Webhook delivery headers. The signature covers "<timestamp>.<body>" so a
// receiver can reject replayed deliveries.
const (
	HeaderEvent     = "X-LRG-Event"
	HeaderDelivery  = "X-LRG-Delivery"
	HeaderTimestamp = "X-LRG-Timestamp"
	HeaderSignature = "X-LRG-Signature"
)

// WebhookNotifier posts alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url      string
	secret   string
	attempts int
	backoff  time.Duration
	client   *http.Client
	now      func() time.Time
}

// NewWebhookNotifier creates a webhook notifier. With a non-empty secret each
// delivery is signed with HMAC-SHA256. A delivery that fails with a network
// error or a 5xx is tried once more.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:      url,
		secret:   secret,
		attempts: 2,
		backoff:  500 * time.Millisecond,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// WithRetry sets the delivery attempt count and the wait between attempts.
func (w *WebhookNotifier) WithRetry(attempts int, backoff time.Duration) *WebhookNotifier {
	w.attempts = max(attempts, 1)
	w.backoff = backoff
	return w
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	event := eventName(alert.Kind)
	ts := w.now().UTC()
	body, err := json.Marshal(webhookPayload{
		ID:        uuid.NewString(),
		Event:     event,
		Timestamp: ts.Format(time.RFC3339),
		Alert:     alert,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", "LLM-Route-Guardian/1.0")
	headers.Set(HeaderEvent, event)
	headers.Set(HeaderDelivery, uuid.NewString())
	if w.secret != "" {
		unix := strconv.FormatInt(ts.Unix(), 10)
		headers.Set(HeaderTimestamp, unix)
		headers.Set(HeaderSignature, "sha256="+Sign([]byte(w.secret), unix, body))
	}

	var lastErr error
	for attempt := range w.attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("send webhook alert: %w", ctx.Err())
			case <-time.After(w.backoff):
			}
		}
		retry, err := w.deliver(ctx, headers, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

// deliver posts body once and reports whether a failure is worth retrying.
func (w *WebhookNotifier) deliver(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode >= 500, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return false, nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" under secret.
// Receivers recompute it to verify a delivery.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func eventName(kind Kind) string {
	if kind == KindProviderDegraded {
		return "provider_degraded"
	}
	return "budget_alert"
}

type webhookPayload struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Alert     Alert  `json:"alert"`
}
