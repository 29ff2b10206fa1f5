package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
portal:
  endpoint: https://example.bitrix24.com
  token_url: https://oauth.bitrix.info/oauth/token/
  client_id: app.123
  client_secret: secret
  call_timeout: 15s
client:
  max_attempts: 5
  retry_delay: 1s
limiter:
  max_requests_per_second: 2
  burst_limit: 50
  queue_timeout: 30s
cache:
  backend: memory
  ttl: 2m
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Portal.Endpoint != "https://example.bitrix24.com" {
		t.Errorf("endpoint = %s", cfg.Portal.Endpoint)
	}
	if cfg.Portal.CallTimeout.Std() != 15*time.Second {
		t.Errorf("call_timeout = %v, want 15s", cfg.Portal.CallTimeout)
	}
	if cfg.Client.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Client.MaxAttempts)
	}
	if cfg.Limiter.BurstLimit != 50 || cfg.Limiter.QueueTimeout.Std() != 30*time.Second {
		t.Errorf("limiter = %+v", cfg.Limiter)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL.Std() != 2*time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
portal:
  endpoint: https://example.bitrix24.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Portal.CallTimeout.Std() != 30*time.Second {
		t.Errorf("call_timeout = %v, want default 30s", cfg.Portal.CallTimeout)
	}
	if cfg.Client.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want default 3", cfg.Client.MaxAttempts)
	}
	if cfg.Client.RetryDelay.Std() != 2*time.Second {
		t.Errorf("retry_delay = %v, want default 2s", cfg.Client.RetryDelay)
	}
	if cfg.Cache.TTL.Std() != time.Minute {
		t.Errorf("cache ttl = %v, want default 1m", cfg.Cache.TTL)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("B24_TEST_CLIENT_SECRET", "from-env")
	path := writeConfig(t, `
portal:
  endpoint: https://example.bitrix24.com
  client_secret: ${B24_TEST_CLIENT_SECRET}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Portal.ClientSecret != "from-env" {
		t.Errorf("client_secret = %q, want from-env", cfg.Portal.ClientSecret)
	}
}

func TestLoad_MissingEndpoint(t *testing.T) {
	path := writeConfig(t, `
portal:
  token_url: https://oauth.bitrix.info/oauth/token/
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing portal.endpoint")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
portal:
  endpoint: https://example.bitrix24.com
  call_timeout: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
