package authsession

import (
	"errors"
	"fmt"
	"time"
)

// ConcurrencyPolicy decides what a mutation does when another one is in flight.
type ConcurrencyPolicy uint8

const (
	// PolicyWait queues the second mutation behind the first.
	PolicyWait ConcurrencyPolicy = iota
	// PolicyReject fails the second Login or Register with ErrOperationInProgress.
	// Logout always waits.
	PolicyReject
)

func (p ConcurrencyPolicy) String() string {
	switch p {
	case PolicyWait:
		return "wait"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseConcurrencyPolicy maps "wait" and "reject" to their policy.
func ParseConcurrencyPolicy(s string) (ConcurrencyPolicy, error) {
	switch s {
	case "", "wait":
		return PolicyWait, nil
	case "reject":
		return PolicyReject, nil
	default:
		return 0, fmt.Errorf("%w: unknown concurrency policy %q", ErrInvalidConfig, s)
	}
}

// Config is the complete manager configuration.
type Config struct {
	Concurrency ConcurrencyConfig
	Restore     RestoreConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

type ConcurrencyConfig struct {
	Policy ConcurrencyPolicy
}

// RestoreConfig controls the startup restore. Restore never calls the
// identity service; expiry is judged from the token's own exp claim.
type RestoreConfig struct {
	RejectExpiredTokens bool
	ExpiryLeeway        time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Concurrency: ConcurrencyConfig{
			Policy: PolicyWait,
		},
		Restore: RestoreConfig{
			RejectExpiredTokens: true,
			ExpiryLeeway:        30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Concurrency
	if c.Concurrency.Policy != PolicyWait && c.Concurrency.Policy != PolicyReject {
		return errors.New("Concurrency Policy must be PolicyWait or PolicyReject")
	}

	// Restore
	if c.Restore.ExpiryLeeway < 0 {
		return errors.New("Restore ExpiryLeeway must be >= 0")
	}
	if c.Restore.ExpiryLeeway > 24*time.Hour {
		return errors.New("Restore ExpiryLeeway must be <= 24h")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
