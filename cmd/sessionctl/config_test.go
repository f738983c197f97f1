package main

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authsession"
)

var testKey = base64.StdEncoding.EncodeToString(make([]byte, 32))

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUTHSESSION_IDENTITY_URL", "AUTHSESSION_IDENTITY_COLLECTION", "AUTHSESSION_IDENTITY_REVOKE_PATH",
		"AUTHSESSION_IDENTITY_TIMEOUT", "AUTHSESSION_STORE_BACKEND", "AUTHSESSION_STORE_DIR",
		"AUTHSESSION_STORE_SQLITE_PATH", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"AUTHSESSION_STORE_KEY", "AUTHSESSION_STORE_SECRET", "AUTHSESSION_STORE_SALT",
		"AUTHSESSION_POLICY", "AUTHSESSION_REJECT_EXPIRED", "AUTHSESSION_EXPIRY_LEEWAY",
		"AUTHSESSION_AUDIT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadCLIConfigRequiresSealingMaterial(t *testing.T) {
	clearEnv(t)
	_, err := loadCLIConfig("")
	if err == nil || !strings.Contains(err.Error(), "store key or store secret") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestLoadCLIConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTHSESSION_STORE_KEY", testKey)

	cfg, err := loadCLIConfig("")
	if err != nil {
		t.Fatalf("loadCLIConfig failed: %v", err)
	}
	if cfg.Store.Backend != "file" || cfg.Identity.BaseURL != "http://127.0.0.1:8090" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	core := cfg.coreConfig(false)
	if core.Concurrency.Policy != authsession.PolicyWait || !core.Restore.RejectExpiredTokens {
		t.Fatalf("unexpected core config: %+v", core)
	}
	if core.Metrics.Enabled || core.Audit.Enabled {
		t.Fatal("metrics and audit should be off by default")
	}
	if err := core.Validate(); err != nil {
		t.Fatalf("core config invalid: %v", err)
	}
}

func TestLoadCLIConfigYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sessionctl.yaml")
	yamlDoc := `
identity:
  base_url: https://auth.example.com
  collection: members
  timeout: 3s
store:
  backend: sqlite
  sqlite_path: /tmp/creds.db
  secret: device-secret
session:
  policy: reject
  expiry_leeway: 1m
  audit: true
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTHSESSION_IDENTITY_TIMEOUT", "7s")
	t.Setenv("AUTHSESSION_REJECT_EXPIRED", "false")

	cfg, err := loadCLIConfig(path)
	if err != nil {
		t.Fatalf("loadCLIConfig failed: %v", err)
	}
	if cfg.Identity.BaseURL != "https://auth.example.com" || cfg.Identity.Collection != "members" {
		t.Fatalf("yaml identity not applied: %+v", cfg.Identity)
	}
	if cfg.Identity.Timeout != 7*time.Second {
		t.Fatalf("env should override yaml timeout, got %v", cfg.Identity.Timeout)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/creds.db" {
		t.Fatalf("yaml store not applied: %+v", cfg.Store)
	}

	core := cfg.coreConfig(true)
	if core.Concurrency.Policy != authsession.PolicyReject {
		t.Fatalf("expected reject policy, got %v", core.Concurrency.Policy)
	}
	if core.Restore.RejectExpiredTokens {
		t.Fatal("env should disable expired token rejection")
	}
	if core.Restore.ExpiryLeeway != time.Minute || !core.Audit.Enabled || !core.Metrics.Enabled {
		t.Fatalf("unexpected core config: %+v", core)
	}
}

func TestCLIConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*cliConfig)
		want   string
	}{
		{"empty url", func(c *cliConfig) { c.Identity.BaseURL = "" }, "base_url"},
		{"zero timeout", func(c *cliConfig) { c.Identity.Timeout = 0 }, "timeout"},
		{"unknown backend", func(c *cliConfig) { c.Store.Backend = "etcd" }, "unknown store backend"},
		{"file without dir", func(c *cliConfig) { c.Store.Dir = "" }, "store dir"},
		{"sqlite without path", func(c *cliConfig) { c.Store.Backend = "sqlite"; c.Store.SQLitePath = "" }, "sqlite_path"},
		{"bad policy", func(c *cliConfig) { c.Session.Policy = "queue" }, "policy"},
		{"bad level", func(c *cliConfig) { c.Log.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultCLIConfig()
			cfg.Store.Key = testKey
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSealingKey(t *testing.T) {
	cfg := defaultCLIConfig()
	cfg.Store.Key = testKey
	key, err := cfg.sealingKey()
	if err != nil || len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d bytes, err=%v", len(key), err)
	}

	cfg.Store.Key = "not base64!"
	if _, err := cfg.sealingKey(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGetEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SESSIONCTL_TEST_INT", "many")
	t.Setenv("SESSIONCTL_TEST_BOOL", "maybe")
	t.Setenv("SESSIONCTL_TEST_DUR", "soon")

	if got := getEnvInt("SESSIONCTL_TEST_INT", 4); got != 4 {
		t.Fatalf("getEnvInt = %d", got)
	}
	if got := getEnvBool("SESSIONCTL_TEST_BOOL", true); !got {
		t.Fatal("getEnvBool should fall back")
	}
	if got := getEnvDuration("SESSIONCTL_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("getEnvDuration = %v", got)
	}
}
