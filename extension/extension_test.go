package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/lock"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Timezone: "Asia/Dubai", EscalationCount: 5})

	assert.Equal(t, "Asia/Dubai", cfg.Timezone)
	assert.Equal(t, 5, cfg.EscalationCount)
	assert.Equal(t, 7, cfg.DayStartHour)
	assert.Equal(t, "inr", cfg.Currency)
	assert.Equal(t, 24*time.Hour, cfg.EscalationWindow)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Timezone: "Asia/Kolkata", MinUnlockReason: 20}
	code := Config{
		Timezone:        "UTC",
		MinUnlockReason: 12,
		DisableMigrate:  true,
		RedisAddr:       "localhost:6379",
	}

	cfg := mergeConfigurations(yaml, code)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
	assert.Equal(t, 20, cfg.MinUnlockReason)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.EscalationCount)
}

func TestEngineConfig(t *testing.T) {
	e := &Extension{config: mergeWithDefaults(Config{
		EscalationCount:      4,
		BlockOnMajorVariance: true,
	})}

	cfg := e.engineConfig()
	assert.Equal(t, 4, cfg.Rules.EscalationCount)
	assert.True(t, cfg.Closure.BlockOnMajorVariance)
	assert.Equal(t, daybook.DefaultConfig().Thresholds, cfg.Thresholds)

	eng, err := daybook.New(nil, daybook.WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 7, eng.Calendar().DayStartHour)
}

func TestBuildEngineOptsPrefersExplicitLocker(t *testing.T) {
	e := &Extension{
		config: mergeWithDefaults(Config{RedisAddr: "localhost:6379"}),
		locker: lock.NewLocal(),
	}
	opts := e.buildEngineOpts()
	assert.Len(t, opts, 2)
	assert.Nil(t, e.redis)
}
