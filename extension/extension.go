// Package extension provides the Forge extension adapter for Daybook.
//
// It implements the forge.Extension interface to integrate Daybook
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.daybook" or "daybook" keys.
package extension

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/lock"
	redislock "github.com/xraph/daybook/lock/redis"
	"github.com/xraph/daybook/store"
	"github.com/xraph/daybook/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "daybook"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Outlet daily ledger integrity core"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Daybook as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *daybook.Engine
	store      store.Store
	locker     lock.Locker
	redis      *goredis.Client
	engineOpts []daybook.Option
}

// New creates a new Daybook Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Daybook engine.
// This is nil until Register is called.
func (e *Extension) Engine() *daybook.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng, err := daybook.New(e.store, e.buildEngineOpts()...)
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*daybook.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("daybook: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("daybook: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// engineConfig overlays the resolved extension config on the engine
// defaults.
func (e *Extension) engineConfig() daybook.Config {
	cfg := daybook.DefaultConfig()
	cfg.Timezone = e.config.Timezone
	cfg.DayStartHour = e.config.DayStartHour
	cfg.Currency = e.config.Currency
	cfg.MinUnlockReason = e.config.MinUnlockReason
	cfg.MaxAmount = e.config.MaxAmount
	cfg.Rules.EscalationCount = e.config.EscalationCount
	cfg.Rules.EscalationWindow = e.config.EscalationWindow
	cfg.Closure.BlockOnMajorVariance = e.config.BlockOnMajorVariance
	return cfg
}

// buildEngineOpts constructs daybook.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []daybook.Option {
	opts := make([]daybook.Option, 0, len(e.engineOpts)+2)
	opts = append(opts, daybook.WithConfig(e.engineConfig()))

	switch {
	case e.locker != nil:
		opts = append(opts, daybook.WithLocker(e.locker))
	case e.config.RedisAddr != "":
		e.redis = goredis.NewClient(&goredis.Options{Addr: e.config.RedisAddr})
		opts = append(opts, daybook.WithLocker(redislock.New(e.redis, redislock.WithTTL(e.config.LockTTL))))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("daybook: configuration is required but not found in config files; " +
				"ensure 'extensions.daybook' or 'daybook' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("daybook: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("timezone", e.config.Timezone),
		forge.F("day_start_hour", e.config.DayStartHour),
		forge.F("escalation_count", e.config.EscalationCount),
		forge.F("escalation_window", e.config.EscalationWindow),
		forge.F("redis_locks", e.config.RedisAddr != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.daybook", "daybook"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("daybook: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("daybook: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Timezone == "" {
		cfg.Timezone = defaults.Timezone
	}
	if cfg.DayStartHour == 0 {
		cfg.DayStartHour = defaults.DayStartHour
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.MinUnlockReason == 0 {
		cfg.MinUnlockReason = defaults.MinUnlockReason
	}
	if cfg.MaxAmount == 0 {
		cfg.MaxAmount = defaults.MaxAmount
	}
	if cfg.EscalationCount == 0 {
		cfg.EscalationCount = defaults.EscalationCount
	}
	if cfg.EscalationWindow == 0 {
		cfg.EscalationWindow = defaults.EscalationWindow
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and bool
// flags set in code stay set.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.BlockOnMajorVariance {
		yamlConfig.BlockOnMajorVariance = true
	}

	if yamlConfig.Timezone == "" {
		yamlConfig.Timezone = programmaticConfig.Timezone
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.RedisAddr == "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}

	if yamlConfig.DayStartHour == 0 {
		yamlConfig.DayStartHour = programmaticConfig.DayStartHour
	}
	if yamlConfig.MinUnlockReason == 0 {
		yamlConfig.MinUnlockReason = programmaticConfig.MinUnlockReason
	}
	if yamlConfig.MaxAmount == 0 {
		yamlConfig.MaxAmount = programmaticConfig.MaxAmount
	}
	if yamlConfig.EscalationCount == 0 {
		yamlConfig.EscalationCount = programmaticConfig.EscalationCount
	}
	if yamlConfig.EscalationWindow == 0 {
		yamlConfig.EscalationWindow = programmaticConfig.EscalationWindow
	}
	if yamlConfig.LockTTL == 0 {
		yamlConfig.LockTTL = programmaticConfig.LockTTL
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
