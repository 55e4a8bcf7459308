// Package extension provides the Forge extension adapter for the rent ledger.
//
// It implements the forge.Extension interface to integrate the ledger, its
// in-process change feed and optional Redis relay into a Forge application
// with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.rentledger" or
// "rentledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/binding"
	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/feed/redisfeed"
	"github.com/xraph/rentledger/identity"
	"github.com/xraph/rentledger/notify"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/store/memory"
	mongostore "github.com/xraph/rentledger/store/mongo"
	pgstore "github.com/xraph/rentledger/store/postgres"
	sqlitestore "github.com/xraph/rentledger/store/sqlite"
	"github.com/xraph/rentledger/workflow"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "rentledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tenant rent ledger with live payment views"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the rent ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *rentledger.Ledger
	hub        *feed.Hub
	bridge     *redisfeed.Bridge
	store      store.Store
	groveDB    *grove.DB
	redis      redis.UniversalClient
	ledgerOpts []rentledger.Option
}

// New creates a new rent ledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *rentledger.Ledger { return e.engine }

// Hub returns the in-process change feed views subscribe to.
// This is nil until Register is called.
func (e *Extension) Hub() *feed.Hub { return e.hub }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine and feed, and registers both in the DI
// container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	s, err := e.resolveStore()
	if err != nil {
		return err
	}
	e.store = s

	e.hub = feed.NewHub()
	e.engine = rentledger.New(e.store, e.buildLedgerOpts()...)

	if e.redis != nil {
		engine := e.engine
		e.bridge = redisfeed.NewBridge(e.redis, e.hub, []string{e.config.PaymentsResource},
			redisfeed.WithPrefix(e.config.FeedPrefix),
			redisfeed.WithLogger(engine.Logger()),
			redisfeed.WithOnLost(func(err error) {
				engine.Plugins().EmitFeedLost(context.Background(), err)
			}),
		)
	}

	if err := vessel.Provide(fapp.Container(), func() (*rentledger.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*feed.Hub, error) {
		return e.hub, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("rentledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.bridge != nil {
		if err := e.bridge.Start(ctx); err != nil {
			return fmt.Errorf("rentledger: start feed bridge: %w", err)
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.bridge != nil {
		if err := e.bridge.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.hub != nil {
		if err := e.hub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("rentledger: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		if err := e.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("rentledger: redis: %w", err)
		}
	}
	return nil
}

// NewWorkflow builds a payment workflow on the engine using the configured
// processing delay.
func (e *Extension) NewWorkflow(sink notify.Sink, opts ...workflow.Option) *workflow.Workflow {
	base := []workflow.Option{
		workflow.WithProcessingDelay(e.config.ProcessingDelay),
		workflow.WithClock(e.engine.Clock()),
		workflow.WithLogger(e.engine.Logger()),
		workflow.WithPlugins(e.engine.Plugins()),
	}
	return workflow.New(e.engine, sink, append(base, opts...)...)
}

// NewBinding builds an inactive view binding on the engine and hub.
func (e *Extension) NewBinding(ident identity.Source, preset binding.Preset, opts ...binding.Option) *binding.Binding {
	base := []binding.Option{binding.WithLogger(e.engine.Logger())}
	return binding.New(e.engine, e.hub, ident, preset, append(base, opts...)...)
}

// resolveStore picks the store: an explicit store, then a grove backend,
// then memory.
func (e *Extension) resolveStore() (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	if e.groveDB == nil {
		if e.config.StoreDriver != "" && e.config.StoreDriver != DriverMemory {
			return nil, fmt.Errorf("rentledger: store driver %q needs a grove database", e.config.StoreDriver)
		}
		return memory.New(), nil
	}

	switch e.config.StoreDriver {
	case DriverPostgres, "pg", "":
		return pgstore.New(e.groveDB), nil
	case DriverSQLite:
		return sqlitestore.New(e.groveDB), nil
	case DriverMongo:
		return mongostore.New(e.groveDB), nil
	default:
		return nil, fmt.Errorf("rentledger: unknown store driver %q", e.config.StoreDriver)
	}
}

// buildLedgerOpts constructs rentledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []rentledger.Option {
	opts := make([]rentledger.Option, 0, len(e.ledgerOpts)+3)

	opts = append(opts,
		rentledger.WithCurrency(e.config.Currency),
		rentledger.WithResource(e.config.PaymentsResource),
	)

	// With Redis every write goes out over Redis and comes back through the
	// bridge, so the local hub sees local and remote writes alike.
	if e.redis != nil {
		opts = append(opts, rentledger.WithPublisher(
			redisfeed.NewPublisher(e.redis, redisfeed.WithPrefix(e.config.FeedPrefix)),
		))
	} else {
		opts = append(opts, rentledger.WithPublisher(e.hub))
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("rentledger: configuration is required but not found in config files; " +
				"ensure 'extensions.rentledger' or 'rentledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("rentledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("processing_delay", e.config.ProcessingDelay),
		forge.F("currency", e.config.Currency),
		forge.F("payments_resource", e.config.PaymentsResource),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.rentledger", "rentledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("rentledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("rentledger: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ProcessingDelay == 0 {
		cfg.ProcessingDelay = defaults.ProcessingDelay
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.PaymentsResource == "" {
		cfg.PaymentsResource = defaults.PaymentsResource
	}
	if cfg.FeedPrefix == "" {
		cfg.FeedPrefix = defaults.FeedPrefix
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.ProcessingDelay == 0 {
		yamlConfig.ProcessingDelay = programmaticConfig.ProcessingDelay
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.PaymentsResource == "" {
		yamlConfig.PaymentsResource = programmaticConfig.PaymentsResource
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}
	if yamlConfig.FeedPrefix == "" {
		yamlConfig.FeedPrefix = programmaticConfig.FeedPrefix
	}

	return mergeWithDefaults(yamlConfig)
}
