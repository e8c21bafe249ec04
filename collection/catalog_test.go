package collection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/michaellenahan/amazon-product-widget/logger"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "collections.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func newTestCatalog(t *testing.T, load LoadFunc, cfg *Config) *Catalog {
	t.Helper()
	c, err := New(logger.NewNop(), cfg, load)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.backoff = time.Millisecond
	t.Cleanup(c.Stop)
	return c
}

func TestFileSource(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
collections:
  - id: yoga-mats
    keys: [B01, B02]
  - id: straps
    keys:
      - B03
`)
	got, err := FileSource(path)(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []Collection{
		{ID: "yoga-mats", Keys: []string{"B01", "B02"}},
		{ID: "straps", Keys: []string{"B03"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalog_StartAndLookup(t *testing.T) {
	c := newTestCatalog(t, Static(
		Collection{ID: "a", Keys: []string{"1", "2"}},
		Collection{ID: "b", Keys: []string{"3"}},
	), nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(c.Get()) != 2 {
		t.Errorf("expected 2 collections, got %d", len(c.Get()))
	}
	col, ok := c.Lookup("b")
	if !ok || col.Keys[0] != "3" {
		t.Errorf("Lookup(b) = %+v, %v", col, ok)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Error("unexpected collection")
	}
}

func TestCatalog_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "collections:\n  - id: a\n    keys: [\"1\"]\n")
	c := newTestCatalog(t, FileSource(path), nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	writeFile(t, dir, "collections:\n  - id: a\n    keys: [\"1\"]\n  - id: b\n    keys: [\"2\"]\n")
	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if _, ok := c.Lookup("b"); !ok {
		t.Error("reload should pick up collection b")
	}
}

func TestCatalog_InvalidKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "collections:\n  - id: a\n    keys: [\"1\"]\n")
	c := newTestCatalog(t, FileSource(path), nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	writeFile(t, dir, "collections:\n  - id: a\n    keys: []\n")
	if err := c.Sync(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if col, ok := c.Lookup("a"); !ok || len(col.Keys) != 1 {
		t.Errorf("previous catalog should be kept, got %+v", col)
	}
}

func TestCatalog_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	load := func(context.Context) ([]Collection, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return []Collection{{ID: "a", Keys: []string{"1"}}}, nil
	}
	c := newTestCatalog(t, load, &Config{MaxRetries: 3})

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCatalog_NonRetryableFailsFast(t *testing.T) {
	var calls atomic.Int32
	load := func(context.Context) ([]Collection, error) {
		calls.Add(1)
		return nil, errors.New("permission denied")
	}
	c := newTestCatalog(t, load, &Config{MaxRetries: 5})

	if err := c.Start(); err == nil {
		t.Fatal("expected Start to fail")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   []Collection
		ok   bool
	}{
		{"empty catalog", nil, true},
		{"valid", []Collection{{ID: "a", Keys: []string{"1"}}}, true},
		{"empty id", []Collection{{Keys: []string{"1"}}}, false},
		{"duplicate id", []Collection{{ID: "a", Keys: []string{"1"}}, {ID: "a", Keys: []string{"2"}}}, false},
		{"no keys", []Collection{{ID: "a"}}, false},
		{"empty key", []Collection{{ID: "a", Keys: []string{""}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.in); (err == nil) != tt.ok {
				t.Errorf("validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (&Config{SyncInterval: -1, SyncTimeout: time.Second, MaxRetries: 1}).Validate(); err == nil {
		t.Error("expected error for negative interval")
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}
