package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
)

// DefaultDegradedThreshold is the consecutive failure count that raises a
// provider_degraded alert.
const DefaultDegradedThreshold = 3

// ProviderAlerter turns health failures into provider_degraded alerts. A key
// alerts once each time its failure streak reaches the threshold.
type ProviderAlerter struct {
	notifiers []Notifier
	threshold int
	timeout   time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewProviderAlerter creates an alerter. A threshold below one uses
// DefaultDegradedThreshold.
func NewProviderAlerter(notifiers []Notifier, threshold int, logger *slog.Logger) *ProviderAlerter {
	if threshold < 1 {
		threshold = DefaultDegradedThreshold
	}
	return &ProviderAlerter{
		notifiers: notifiers,
		threshold: threshold,
		timeout:   10 * time.Second,
		logger:    logger,
	}
}

// Observe is a health listener. Delivery happens in the background so the
// caller's request path never waits on a notifier.
func (a *ProviderAlerter) Observe(state health.State) {
	if len(a.notifiers) == 0 || state.ConsecutiveFailures != a.threshold {
		return
	}

	alert := Alert{
		Kind:                KindProviderDegraded,
		Level:               AlertDegraded,
		Provider:            state.Provider,
		Model:               state.Model,
		ConsecutiveFailures: state.ConsecutiveFailures,
		CooldownUntil:       state.CooldownUntil,
		LastError:           state.LastError,
		Message: fmt.Sprintf("%s failed %d times in a row (%s)",
			state.Key(), state.ConsecutiveFailures, state.LastOutcome),
	}

	a.logger.Warn("provider degraded",
		"key", state.Key().String(),
		"failures", state.ConsecutiveFailures,
		"last_error", state.LastError,
	)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		for _, n := range a.notifiers {
			if err := n.Send(ctx, alert); err != nil {
				a.logger.Error("send alert failed",
					"notifier", n.Name(),
					"key", state.Key().String(),
					"error", err,
				)
			}
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (a *ProviderAlerter) Wait() {
	a.wg.Wait()
}
