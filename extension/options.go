package extension

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/grove"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/store"
)

// Option configures the rent ledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine. It wins over WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from db using Config.StoreDriver.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithRedis carries change signals over Redis so views in every process
// see every write.
func WithRedis(client redis.UniversalClient) Option {
	return func(e *Extension) {
		e.redis = client
	}
}

// WithLedgerOption passes a rentledger.Option through to the underlying engine.
func WithLedgerOption(opt rentledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, rentledger.WithPlugin(p))
	}
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

// WithProcessingDelay sets the simulated gateway delay of built workflows.
func WithProcessingDelay(d time.Duration) Option {
	return func(e *Extension) { e.config.ProcessingDelay = d }
}

// WithCurrency sets the ledger currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithPaymentsResource sets the feed resource payments are announced on.
func WithPaymentsResource(resource string) Option {
	return func(e *Extension) { e.config.PaymentsResource = resource }
}

// WithStoreDriver names the grove backend: "postgres", "sqlite" or "mongo".
func WithStoreDriver(driver string) Option {
	return func(e *Extension) { e.config.StoreDriver = driver }
}
