package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaellenahan/amazon-product-widget/store"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Store.Driver != store.DriverBadger {
		t.Errorf("default driver = %s", cfg.Store.Driver)
	}
	if cfg.Staleness.TTL != 30*24*time.Hour || cfg.Fetcher.MaxKeysPerCall != 10 || cfg.Refresh.Concurrency != 1 {
		t.Errorf("unexpected defaults: %+v %+v %+v", cfg.Staleness, cfg.Fetcher, cfg.Refresh)
	}
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_WIDGET_API_KEY", "secret-key")

	cfg, err := Parse([]byte(`
logger:
  level: debug
store:
  driver: redis
  redis:
    addr: localhost:6379
staleness:
  ttl: 168h
fetcher:
  endpoint: https://products.example.com
  api_key: ${TEST_WIDGET_API_KEY}
  max_keys_per_call: 5
  window: 2s
refresh:
  concurrency: 2
cron:
  spec: "0 0 * * * *"
  max_continuations: -1
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Logger.Level != "debug" || cfg.Logger.Encoding != "json" {
		t.Errorf("logger = %+v", cfg.Logger)
	}
	if cfg.Store.Driver != store.DriverRedis || cfg.Store.Redis.Addr != "localhost:6379" || cfg.Store.Redis.PoolSize == 0 {
		t.Errorf("store = %+v", cfg.Store.Redis)
	}
	if cfg.Staleness.TTL != 7*24*time.Hour || cfg.Staleness.Policy().RetryBackoff != time.Hour {
		t.Errorf("staleness = %+v", cfg.Staleness)
	}
	if cfg.Fetcher.APIKey != "secret-key" || cfg.Fetcher.Window != 2*time.Second || cfg.Fetcher.CallsPerWindow != 1 {
		t.Errorf("fetcher = %+v", cfg.Fetcher)
	}
	if cfg.Refresh.Concurrency != 2 || cfg.Cron.MaxContinuations != -1 {
		t.Errorf("refresh = %+v cron = %+v", cfg.Refresh, cfg.Cron)
	}
}

func TestParse_ZeroDurations(t *testing.T) {
	cfg, err := Parse([]byte("staleness:\n  retry_backoff: 0s\nstore:\n  badger:\n    gc_interval: 0s\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := cfg.Staleness.Policy().RetryBackoff; got != 0 {
		t.Errorf("retry_backoff = %v, want 0", got)
	}
	if got := cfg.Staleness.TTL; got != 30*24*time.Hour {
		t.Errorf("ttl = %v, want default", got)
	}
	if cfg.Store.Badger.GCInterval == nil || *cfg.Store.Badger.GCInterval != 0 {
		t.Errorf("gc_interval = %v, want 0", cfg.Store.Badger.GCInterval)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown driver", "store:\n  driver: etcd\n"},
		{"unknown field", "fetcher:\n  max_keys: 5\n"},
		{"bad level", "logger:\n  level: loud\n"},
		{"negative ttl", "staleness:\n  ttl: -1h\n"},
		{"negative retry backoff", "staleness:\n  retry_backoff: -1m\n"},
		{"kafka without brokers", "events:\n  kafka:\n    topic: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("empty document should yield defaults: %v", err)
	}
	if cfg.Cron.Spec == "" {
		t.Error("cron spec should default")
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgetcache.yaml")
	if err := os.WriteFile(path, []byte("fetcher:\n  endpoint: ${TEST_WIDGET_ENDPOINT}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TEST_WIDGET_ENDPOINT=http://upstream.local\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TEST_WIDGET_ENDPOINT") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Fetcher.Endpoint != "http://upstream.local" {
		t.Errorf("endpoint = %q", cfg.Fetcher.Endpoint)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error")
	}
}
