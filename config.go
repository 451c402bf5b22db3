package tokenauth

import (
	"errors"
	"time"
)

// Config controls token lifetimes, signing, and the ambient subsystems.
// Validated during [Builder.Build]; zero values fall back to defaults where a
// safe default exists.
type Config struct {
	// SecretKey is the process-wide symmetric key used to sign access
	// handles. Required.
	SecretKey []byte

	// Issuer, when set, is stamped into and checked on every access handle.
	Issuer string

	// AccessTokenTTL bounds the access window of a freshly issued record.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL bounds the refresh window and doubles as the storage
	// TTL, so an entry never outlives the longest possible use of its
	// refresh secret. Must exceed AccessTokenTTL.
	RefreshTokenTTL time.Duration

	// ExpireGrace is the near-future deadline applied when a record is
	// retired. The grace period keeps a just-revoked token working for
	// requests already in flight; it is a deliberate, bounded leniency.
	ExpireGrace time.Duration

	// Leeway tolerates small clock skew when validating handle claims.
	Leeway time.Duration

	// RedisPrefix namespaces every key the token store touches.
	RedisPrefix string

	Audit   AuditConfig
	Metrics MetricsConfig
}

// AuditConfig controls the async audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking callers when the buffer is
	// saturated. Dropped events are counted, never silently lost.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the lifetimes the Arctic Fox backend ships with:
// 15-minute access windows, 30-day refresh windows, 5 seconds of revocation
// grace. SecretKey is left empty and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		ExpireGrace:     5 * time.Second,
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if len(cfg.SecretKey) == 0 {
		return errors.New("config: SecretKey is required")
	}
	if len(cfg.SecretKey) < 16 {
		return errors.New("config: SecretKey shorter than 16 bytes")
	}
	if cfg.AccessTokenTTL <= 0 {
		return errors.New("config: AccessTokenTTL must be positive")
	}
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return errors.New("config: RefreshTokenTTL must exceed AccessTokenTTL")
	}
	if cfg.ExpireGrace <= 0 {
		return errors.New("config: ExpireGrace must be positive")
	}
	if cfg.ExpireGrace >= cfg.AccessTokenTTL {
		return errors.New("config: ExpireGrace must be shorter than AccessTokenTTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return errors.New("config: Leeway out of range")
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize < 0 {
		return errors.New("config: Audit.BufferSize negative")
	}
	return nil
}
