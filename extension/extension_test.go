package extension

import (
	"testing"
	"time"

	"github.com/xraph/rentledger/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Currency: "usd"})

	if cfg.Currency != "usd" {
		t.Errorf("Currency = %q, want usd", cfg.Currency)
	}
	if cfg.ProcessingDelay != 2*time.Second || cfg.PaymentsResource != "payments" || cfg.FeedPrefix != "rentledger:feed:" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{ProcessingDelay: 500 * time.Millisecond, StoreDriver: DriverSQLite}
	prog := Config{
		DisableMigrate:  true,
		ProcessingDelay: time.Second,
		Currency:        "usd",
		StoreDriver:     DriverPostgres,
	}

	got := mergeConfigurations(yaml, prog)

	tests := []struct {
		name string
		ok   bool
	}{
		{"yaml delay wins", got.ProcessingDelay == 500*time.Millisecond},
		{"yaml driver wins", got.StoreDriver == DriverSQLite},
		{"programmatic fills currency", got.Currency == "usd"},
		{"programmatic bool applies", got.DisableMigrate},
		{"defaults fill the rest", got.PaymentsResource == "payments"},
	}
	for _, tt := range tests {
		if !tt.ok {
			t.Errorf("%s: %+v", tt.name, got)
		}
	}
}

func TestResolveStore(t *testing.T) {
	explicit := memory.New()

	tests := []struct {
		name    string
		ext     *Extension
		wantErr bool
	}{
		{"explicit store", &Extension{store: explicit}, false},
		{"memory fallback", &Extension{}, false},
		{"memory by name", &Extension{config: Config{StoreDriver: DriverMemory}}, false},
		{"driver without database", &Extension{config: Config{StoreDriver: DriverPostgres}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.ext.resolveStore()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Fatal("nil store")
			}
		})
	}

	if s, _ := (&Extension{store: explicit}).resolveStore(); s != explicit {
		t.Error("explicit store was replaced")
	}
}
