package extension

import "time"

// Store drivers understood by Config.StoreDriver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the rent ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.rentledger" or "rentledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ProcessingDelay is the simulated gateway round trip of workflows built
	// by the extension (default: 2s).
	ProcessingDelay time.Duration `json:"processing_delay" mapstructure:"processing_delay" yaml:"processing_delay"`

	// Currency is the ledger currency (default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// PaymentsResource is the change feed resource payments are announced
	// on (default: "payments").
	PaymentsResource string `json:"payments_resource" mapstructure:"payments_resource" yaml:"payments_resource"`

	// StoreDriver picks the backend built around the grove.DB passed with
	// WithGroveDB: "postgres", "sqlite" or "mongo". Without a grove.DB the
	// memory store is used.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// FeedPrefix is the Redis channel prefix used when a Redis client is
	// configured (default: "rentledger:feed:").
	FeedPrefix string `json:"feed_prefix" mapstructure:"feed_prefix" yaml:"feed_prefix"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProcessingDelay:  2 * time.Second,
		Currency:         "inr",
		PaymentsResource: "payments",
		FeedPrefix:       "rentledger:feed:",
	}
}
