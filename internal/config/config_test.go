package config

import (
	"testing"

	"github.com/gateway-fm/txblast/internal/account"
	"github.com/gateway-fm/txblast/pkg/types"
)

func validConfig() *Config {
	return &Config{
		RPCURL:         DefaultRPCURL,
		TxCount:        DefaultTxCount,
		SenderCount:    DefaultSenderCount,
		Concurrency:    DefaultConcurrency,
		ValueWei:       DefaultValueWei,
		FundingWei:     DefaultFundingWei,
		GasBuffer:      DefaultGasBuffer,
		Mix:            types.Mix{Transfer: 100},
		ReceiptTimeout: DefaultReceiptTimeout,
		FunderKey:      account.DefaultFunderKey,
		DatabasePath:   DefaultDatabasePath,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing rpc url", func(c *Config) { c.RPCURL = "" }, true},
		{"zero tx count", func(c *Config) { c.TxCount = 0 }, true},
		{"negative tx count", func(c *Config) { c.TxCount = -5 }, true},
		{"zero senders", func(c *Config) { c.SenderCount = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"gas buffer at one", func(c *Config) { c.GasBuffer = 1.0 }, true},
		{"gas buffer below one", func(c *Config) { c.GasBuffer = 0.8 }, true},
		{"empty mix", func(c *Config) { c.Mix = types.Mix{} }, true},
		{"negative mix share", func(c *Config) { c.Mix = types.Mix{Transfer: 110, Swap: -10} }, true},
		{"unnormalized mix is fine", func(c *Config) { c.Mix = types.Mix{Transfer: 3, TokenTransfer: 1} }, false},
		{"bad value wei", func(c *Config) { c.ValueWei = "0.001" }, true},
		{"negative value wei", func(c *Config) { c.ValueWei = "-1" }, true},
		{"zero value wei is fine", func(c *Config) { c.ValueWei = "0" }, false},
		{"zero funding wei", func(c *Config) { c.FundingWei = "0" }, true},
		{"swaps without router", func(c *Config) {
			c.Mix = types.Mix{Transfer: 90, Swap: 10}
			c.SecondToken = "0x2"
		}, true},
		{"swaps without second token", func(c *Config) {
			c.Mix = types.Mix{Transfer: 90, Swap: 10}
			c.RouterAddr = "0x1"
		}, true},
		{"swaps fully configured", func(c *Config) {
			c.Mix = types.Mix{Transfer: 90, Swap: 10}
			c.RouterAddr = "0x1"
			c.SecondToken = "0x2"
		}, false},
		{"zero receipt timeout", func(c *Config) { c.ReceiptTimeout = 0 }, true},
		{"missing funder key", func(c *Config) { c.FunderKey = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValueAndFundingParse(t *testing.T) {
	cfg := validConfig()

	v, err := cfg.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != DefaultValueWei {
		t.Errorf("Value() = %s, want %s", v, DefaultValueWei)
	}

	f, err := cfg.Funding()
	if err != nil {
		t.Fatal(err)
	}
	if f.String() != DefaultFundingWei {
		t.Errorf("Funding() = %s, want %s", f, DefaultFundingWei)
	}

	cfg.FundingWei = "not-a-number"
	if _, err := cfg.Funding(); err == nil {
		t.Error("expected parse error")
	}
}
