package tokenauth

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.SecretKey = []byte("unit-test-signing-key-0123456789")
	return cfg
}

func TestDefaultConfigLifetimes(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 30*24*time.Hour {
		t.Fatalf("RefreshTokenTTL = %v, want 720h", cfg.RefreshTokenTTL)
	}
	if cfg.ExpireGrace != 5*time.Second {
		t.Fatalf("ExpireGrace = %v, want 5s", cfg.ExpireGrace)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with key", nil, false},
		{"missing key", func(c *Config) { c.SecretKey = nil }, true},
		{"short key", func(c *Config) { c.SecretKey = []byte("too-short") }, true},
		{"zero access ttl", func(c *Config) { c.AccessTokenTTL = 0 }, true},
		{"refresh not beyond access", func(c *Config) { c.RefreshTokenTTL = c.AccessTokenTTL }, true},
		{"zero grace", func(c *Config) { c.ExpireGrace = 0 }, true},
		{"grace swallows access window", func(c *Config) { c.ExpireGrace = c.AccessTokenTTL }, true},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }, true},
		{"excessive leeway", func(c *Config) { c.Leeway = 3 * time.Minute }, true},
		{"reasonable leeway", func(c *Config) { c.Leeway = 30 * time.Second }, false},
		{"negative audit buffer", func(c *Config) { c.Audit.BufferSize = -1 }, true},
		{"audit disabled ignores buffer", func(c *Config) {
			c.Audit.Enabled = false
			c.Audit.BufferSize = -1
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := validateConfig(cfg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
