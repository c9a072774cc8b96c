package extension

import (
	"time"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/lock"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/store"
)

// Option configures the Daybook Forge extension.
type Option func(*Extension)

// WithStore sets the store for the daybook engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a daybook.Option through to the underlying engine.
func WithEngineOption(opt daybook.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a daybook plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, daybook.WithPlugin(p))
	}
}

// WithLocker sets the per-key locker, overriding RedisAddr.
func WithLocker(l lock.Locker) Option {
	return func(e *Extension) { e.locker = l }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTimezone sets the business calendar timezone.
func WithTimezone(tz string) Option {
	return func(e *Extension) { e.config.Timezone = tz }
}

// WithDayStartHour sets the hour a business date starts at.
func WithDayStartHour(h int) Option {
	return func(e *Extension) { e.config.DayStartHour = h }
}

// WithEscalation tunes how many critical anomalies within window recommend
// a lock.
func WithEscalation(count int, window time.Duration) Option {
	return func(e *Extension) {
		e.config.EscalationCount = count
		e.config.EscalationWindow = window
	}
}

// WithRedisAddr shares day locks through the Redis server at addr.
func WithRedisAddr(addr string) Option {
	return func(e *Extension) { e.config.RedisAddr = addr }
}
