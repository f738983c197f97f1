package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/credstore"
)

// cliConfig is the on-disk configuration. Values resolve in order: defaults,
// YAML file, .env file, process environment.
type cliConfig struct {
	Identity identityConfig `yaml:"identity"`
	Store    storeConfig    `yaml:"store"`
	Session  sessionConfig  `yaml:"session"`
	Log      logConfig      `yaml:"log"`
}

type identityConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Collection string        `yaml:"collection"`
	RevokePath string        `yaml:"revoke_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

type storeConfig struct {
	// Backend is memory, file, redis or sqlite.
	Backend    string      `yaml:"backend"`
	Dir        string      `yaml:"dir"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      redisConfig `yaml:"redis"`
	// Key is a base64 32-byte sealing key. When empty, Secret and Salt derive one.
	Key    string `yaml:"key"`
	Secret string `yaml:"secret"`
	Salt   string `yaml:"salt"`
}

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type sessionConfig struct {
	Policy              string        `yaml:"policy"`
	RejectExpiredTokens bool          `yaml:"reject_expired_tokens"`
	ExpiryLeeway        time.Duration `yaml:"expiry_leeway"`
	Audit               bool          `yaml:"audit"`
}

type logConfig struct {
	Level string `yaml:"level"`
}

func defaultCLIConfig() cliConfig {
	core := authsession.DefaultConfig()
	return cliConfig{
		Identity: identityConfig{
			BaseURL:    "http://127.0.0.1:8090",
			Collection: "users",
			Timeout:    10 * time.Second,
		},
		Store: storeConfig{
			Backend:    "file",
			Dir:        "./data/credentials",
			SQLitePath: "./data/credentials.db",
			Redis:      redisConfig{Prefix: "authsession"},
		},
		Session: sessionConfig{
			Policy:              "wait",
			RejectExpiredTokens: core.Restore.RejectExpiredTokens,
			ExpiryLeeway:        core.Restore.ExpiryLeeway,
		},
		Log: logConfig{Level: "info"},
	}
}

func loadCLIConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; variables already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *cliConfig) {
	cfg.Identity.BaseURL = getEnv("AUTHSESSION_IDENTITY_URL", cfg.Identity.BaseURL)
	cfg.Identity.Collection = getEnv("AUTHSESSION_IDENTITY_COLLECTION", cfg.Identity.Collection)
	cfg.Identity.RevokePath = getEnv("AUTHSESSION_IDENTITY_REVOKE_PATH", cfg.Identity.RevokePath)
	cfg.Identity.Timeout = getEnvDuration("AUTHSESSION_IDENTITY_TIMEOUT", cfg.Identity.Timeout)

	cfg.Store.Backend = getEnv("AUTHSESSION_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Dir = getEnv("AUTHSESSION_STORE_DIR", cfg.Store.Dir)
	cfg.Store.SQLitePath = getEnv("AUTHSESSION_STORE_SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.Redis.Addr = getEnv("REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = getEnvInt("REDIS_DB", cfg.Store.Redis.DB)
	cfg.Store.Key = getEnv("AUTHSESSION_STORE_KEY", cfg.Store.Key)
	cfg.Store.Secret = getEnv("AUTHSESSION_STORE_SECRET", cfg.Store.Secret)
	cfg.Store.Salt = getEnv("AUTHSESSION_STORE_SALT", cfg.Store.Salt)

	cfg.Session.Policy = getEnv("AUTHSESSION_POLICY", cfg.Session.Policy)
	cfg.Session.RejectExpiredTokens = getEnvBool("AUTHSESSION_REJECT_EXPIRED", cfg.Session.RejectExpiredTokens)
	cfg.Session.ExpiryLeeway = getEnvDuration("AUTHSESSION_EXPIRY_LEEWAY", cfg.Session.ExpiryLeeway)
	cfg.Session.Audit = getEnvBool("AUTHSESSION_AUDIT", cfg.Session.Audit)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

func (c *cliConfig) Validate() error {
	if c.Identity.BaseURL == "" {
		return errors.New("identity base_url cannot be empty")
	}
	if c.Identity.Timeout <= 0 {
		return errors.New("identity timeout must be > 0")
	}
	switch c.Store.Backend {
	case "memory", "redis":
	case "file":
		if c.Store.Dir == "" {
			return errors.New("store dir cannot be empty for the file backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store sqlite_path cannot be empty for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Key == "" && c.Store.Secret == "" {
		return errors.New("store key or store secret is required")
	}
	if _, err := authsession.ParseConcurrencyPolicy(c.Session.Policy); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// coreConfig maps the CLI settings onto the manager's Config.
func (c *cliConfig) coreConfig(withMetrics bool) authsession.Config {
	cfg := authsession.DefaultConfig()
	cfg.Concurrency.Policy, _ = authsession.ParseConcurrencyPolicy(c.Session.Policy)
	cfg.Restore.RejectExpiredTokens = c.Session.RejectExpiredTokens
	cfg.Restore.ExpiryLeeway = c.Session.ExpiryLeeway
	cfg.Audit.Enabled = c.Session.Audit
	cfg.Metrics.Enabled = withMetrics
	cfg.Metrics.EnableLatencyHistograms = withMetrics
	return cfg
}

func (c *cliConfig) sealingKey() ([]byte, error) {
	if c.Store.Key != "" {
		key, err := base64.StdEncoding.DecodeString(c.Store.Key)
		if err != nil {
			return nil, fmt.Errorf("decode store key: %w", err)
		}
		return key, nil
	}
	salt := c.Store.Salt
	if salt == "" {
		salt = "authsession-default-salt"
	}
	return credstore.DeriveKey([]byte(c.Store.Secret), []byte(salt), credstore.DefaultKeyDerivation())
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
