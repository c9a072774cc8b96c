package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

type counter struct {
	mu sync.Mutex
	v  float64
}

func (c *counter) Inc() { c.Add(1) }

func (c *counter) Add(d float64) {
	c.mu.Lock()
	c.v += d
	c.mu.Unlock()
}

func (c *counter) Observe(v float64) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

type factory struct {
	metrics map[string]*counter
}

func newFactory() *factory { return &factory{metrics: map[string]*counter{}} }

func (f *factory) get(name string) *counter {
	if c, ok := f.metrics[name]; ok {
		return c
	}
	c := &counter{}
	f.metrics[name] = c
	return c
}

func (f *factory) Counter(name string) Counter     { return f.get(name) }
func (f *factory) Histogram(name string) Histogram { return f.get(name) }

func (f *factory) value(name string) float64 { return f.get(name).v }

func TestPostingMetrics(t *testing.T) {
	f := newFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, m.OnTransactionPosted(ctx, &transaction.Transaction{Amount: types.Rupees(25), IsManual: true}))
	require.NoError(t, m.OnTransactionPosted(ctx, &transaction.Transaction{Amount: types.Rupees(10), IsReversal: true}))
	require.NoError(t, m.OnTransactionDenied(ctx, plugin.Denial{}))

	assert.Equal(t, 2.0, f.value("daybook.transaction.posted"))
	assert.Equal(t, 1.0, f.value("daybook.transaction.manual"))
	assert.Equal(t, 1.0, f.value("daybook.transaction.reversal"))
	assert.Equal(t, 1000.0, f.value("daybook.transaction.amount_paise"))
	assert.Equal(t, 1.0, f.value("daybook.transaction.denied"))
}

func TestDayMetrics(t *testing.T) {
	f := newFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()
	actor := access.Actor{ID: "ho-1", Role: access.RoleHOAccountant}

	open := day.NewRecord("outlet-1", types.Date(2025, time.March, 14), types.DefaultCurrency, time.Now())
	locked := open.Clone()
	locked.Status = day.StatusLocked
	locked.LockCause = day.CauseAutoEscalation

	require.NoError(t, m.OnDayTransitioned(ctx, open, locked, actor))
	require.NoError(t, m.OnDayTransitioned(ctx, locked, open, actor))

	assert.Equal(t, 1.0, f.value("daybook.day.locked"))
	assert.Equal(t, 1.0, f.value("daybook.day.auto_locked"))
	assert.Equal(t, 1.0, f.value("daybook.day.unlocked"))
	assert.Equal(t, 0.0, f.value("daybook.day.submitted"))
}

func TestAnomalyMetrics(t *testing.T) {
	f := newFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, m.OnAnomalyDetected(ctx, &anomaly.Anomaly{Severity: anomaly.SeverityWarning}))
	require.NoError(t, m.OnAnomalyDetected(ctx, &anomaly.Anomaly{Severity: anomaly.SeverityCritical}))
	require.NoError(t, m.OnLockRecommended(ctx, &anomaly.Recommendation{}))

	assert.Equal(t, 2.0, f.value("daybook.anomaly.detected"))
	assert.Equal(t, 1.0, f.value("daybook.anomaly.critical"))
	assert.Equal(t, 1.0, f.value("daybook.recommendation.created"))
}
