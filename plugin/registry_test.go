package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/transaction"
)

type recorder struct {
	name      string
	posted    atomic.Int32
	anomalies atomic.Int32
	fail      bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnTransactionPosted(context.Context, *transaction.Transaction) error {
	r.posted.Add(1)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnAnomalyDetected(context.Context, *anomaly.Anomaly) error {
	r.anomalies.Add(1)
	return nil
}

type sleeper struct{}

func (sleeper) Name() string { return "sleeper" }

func (sleeper) OnTransactionPosted(context.Context, *transaction.Transaction) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	assert.Error(t, r.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

func TestDispatchByInterface(t *testing.T) {
	r := quietRegistry()
	a := &recorder{name: "a"}
	b := &recorder{name: "b", fail: true}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	ctx := context.Background()
	r.EmitTransactionPosted(ctx, &transaction.Transaction{})
	r.EmitAnomalyDetected(ctx, &anomaly.Anomaly{})
	r.EmitLockRecommended(ctx, &anomaly.Recommendation{})

	assert.Equal(t, int32(1), a.posted.Load())
	assert.Equal(t, int32(1), b.posted.Load(), "a failing plugin still ran and did not stop dispatch")
	assert.Equal(t, int32(1), a.anomalies.Load())
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, r.Register(sleeper{}))

	start := time.Now()
	r.EmitTransactionPosted(context.Background(), &transaction.Transaction{})
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	assert.Equal(t, []string{"OnTransactionPosted"}, r.getImplementedInterfaces(sleeper{}))
}
