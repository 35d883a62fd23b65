package tracker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/model"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBudgetManager(t *testing.T, notifiers []alerts.Notifier) (*tracker.BudgetManager, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := tracker.NewBudgetManager(store, notifiers, testLogger())
	return mgr, store
}

// alertSink is a webhook endpoint that records the levels it receives.
type alertSink struct {
	mu     sync.Mutex
	levels []string
	server *httptest.Server
}

func newAlertSink(t *testing.T) *alertSink {
	s := &alertSink{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Alert alerts.Alert `json:"alert"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			s.mu.Lock()
			s.levels = append(s.levels, string(payload.Alert.Level))
			s.mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *alertSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.levels...)
}

func TestBudgetManager_RecordSpend(t *testing.T) {
	mgr, store := newTestBudgetManager(t, nil)
	ctx := context.Background()

	budget := &model.Budget{
		Name:              "test",
		LimitUSD:          100.00,
		Period:            model.PeriodMonthly,
		AlertThresholdPct: 80.0,
	}
	require.NoError(t, store.SetBudget(ctx, budget))

	require.NoError(t, mgr.RecordSpend(ctx, 25.00))

	got, err := store.GetBudget(ctx, "test")
	require.NoError(t, err)
	assert.InDelta(t, 25.00, got.CurrentSpend, 0.001)
}

func TestBudgetManager_CheckAll_NoBudgets(t *testing.T) {
	mgr, _ := newTestBudgetManager(t, nil)
	require.NoError(t, mgr.CheckAll(context.Background()))
}

func TestBudgetManager_CheckAll_Exceeded(t *testing.T) {
	mgr, store := newTestBudgetManager(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{Name: "test", LimitUSD: 50.00, Period: model.PeriodMonthly}))
	require.NoError(t, store.UpdateBudgetSpend(ctx, "test", 60.00))

	err := mgr.CheckAll(ctx)
	assert.ErrorIs(t, err, tracker.ErrBudgetExceeded)
	assert.Contains(t, err.Error(), `"test"`)
}

func TestBudgetManager_Alerts(t *testing.T) {
	tests := []struct {
		name  string
		spend []float64
		want  []string
	}{
		{"under threshold", []float64{50}, nil},
		{"warning", []float64{85}, []string{"warning"}},
		{"critical", []float64{96}, []string{"critical"}},
		{"exceeded", []float64{120}, []string{"exceeded"}},
		{"same level alerts once", []float64{81, 2, 3}, []string{"warning"}},
		{"escalation", []float64{81, 15, 10}, []string{"warning", "critical", "exceeded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newAlertSink(t)
			mgr, store := newTestBudgetManager(t, []alerts.Notifier{
				alerts.NewWebhookNotifier(sink.server.URL, ""),
			})
			ctx := context.Background()

			require.NoError(t, store.SetBudget(ctx, &model.Budget{
				Name:              "alert-test",
				LimitUSD:          100.00,
				Period:            model.PeriodMonthly,
				AlertThresholdPct: 80.0,
			}))

			for _, amount := range tt.spend {
				require.NoError(t, mgr.RecordSpend(ctx, amount))
			}
			assert.Equal(t, tt.want, sink.received())
		})
	}
}

func TestBudgetManager_ResetBudgetSpend(t *testing.T) {
	mgr, store := newTestBudgetManager(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{Name: "reset-test", LimitUSD: 100.00, Period: model.PeriodMonthly}))
	require.NoError(t, store.UpdateBudgetSpend(ctx, "reset-test", 75.00))

	require.NoError(t, mgr.ResetBudgetSpend(ctx, "reset-test"))

	got, err := store.GetBudget(ctx, "reset-test")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got.CurrentSpend, 0.001)

	assert.Error(t, mgr.ResetBudgetSpend(ctx, "missing"))
}

func TestBudgetManager_RollOver(t *testing.T) {
	mgr, store := newTestBudgetManager(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{Name: "daily", LimitUSD: 10, Period: model.PeriodDaily}))
	require.NoError(t, store.SetBudget(ctx, &model.Budget{Name: "idle", LimitUSD: 10, Period: model.PeriodMonthly}))
	require.NoError(t, store.UpdateBudgetSpend(ctx, "daily", 12))

	// Same period: nothing to roll over.
	reset, err := mgr.RollOver(ctx)
	require.NoError(t, err)
	assert.Empty(t, reset)
	assert.ErrorIs(t, mgr.CheckAll(ctx), tracker.ErrBudgetExceeded)

	mgr.WithClock(func() time.Time { return time.Now().AddDate(0, 0, 2) })

	reset, err = mgr.RollOver(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, reset, "budgets without spend are left alone")

	got, err := store.GetBudget(ctx, "daily")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got.CurrentSpend, 0.001)
}

func TestBudgetManager_CheckAll_RollsOverExpiredPeriod(t *testing.T) {
	mgr, store := newTestBudgetManager(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SetBudget(ctx, &model.Budget{Name: "weekly", LimitUSD: 5, Period: model.PeriodWeekly}))
	require.NoError(t, store.UpdateBudgetSpend(ctx, "weekly", 9))
	require.Error(t, mgr.CheckAll(ctx))

	mgr.WithClock(func() time.Time { return time.Now().AddDate(0, 0, 8) })
	require.NoError(t, mgr.CheckAll(ctx))
}
