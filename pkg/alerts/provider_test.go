package alerts_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []alerts.Alert
	err  error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, alert alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, alert)
	return r.err
}

func (r *recordingNotifier) received() []alerts.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerts.Alert(nil), r.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProviderAlerter_FiresAtThreshold(t *testing.T) {
	rec := &recordingNotifier{}
	alerter := alerts.NewProviderAlerter([]alerts.Notifier{rec}, 2, testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := health.NewTracker(
		health.WithClock(func() time.Time { return now }),
		health.WithListener(alerter.Observe),
	)

	key := health.ModelKey("groq", "llama-3.3-70b-versatile")
	tracker.RecordOutcome(key, health.RateLimited, errors.New("429"))
	alerter.Wait()
	assert.Empty(t, rec.received())

	tracker.RecordOutcome(key, health.Error, errors.New("502 bad gateway"))
	tracker.RecordOutcome(key, health.Error, errors.New("502 bad gateway"))
	alerter.Wait()

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, alerts.KindProviderDegraded, got[0].Kind)
	assert.Equal(t, alerts.AlertDegraded, got[0].Level)
	assert.Equal(t, "groq", got[0].Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", got[0].Model)
	assert.Equal(t, 2, got[0].ConsecutiveFailures)
	assert.Equal(t, "502 bad gateway", got[0].LastError)
	require.NotNil(t, got[0].CooldownUntil)
}

func TestProviderAlerter_RearmsAfterRecovery(t *testing.T) {
	rec := &recordingNotifier{}
	alerter := alerts.NewProviderAlerter([]alerts.Notifier{rec}, 1, testLogger())
	tracker := health.NewTracker(health.WithListener(alerter.Observe))

	key := health.ProviderKey("openai")
	tracker.RecordOutcome(key, health.RateLimited, nil)
	tracker.RecordOutcome(key, health.Success, nil)
	tracker.RecordOutcome(key, health.RateLimited, nil)
	alerter.Wait()

	assert.Len(t, rec.received(), 2)
}

func TestProviderAlerter_NotifierErrorIsLogged(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}
	alerter := alerts.NewProviderAlerter([]alerts.Notifier{failing, ok}, 0, testLogger())

	alerter.Observe(health.State{Provider: "anthropic", ConsecutiveFailures: alerts.DefaultDegradedThreshold})
	alerter.Wait()

	assert.Len(t, failing.received(), 1)
	assert.Len(t, ok.received(), 1)
}

func TestProviderAlerter_NoNotifiers(t *testing.T) {
	alerter := alerts.NewProviderAlerter(nil, 1, testLogger())
	alerter.Observe(health.State{Provider: "openai", ConsecutiveFailures: 1})
	alerter.Wait()
}
