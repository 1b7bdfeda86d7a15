package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"payments/internal/config"
)

func TestCreateBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name        string
		config      Config
		wantPrefix  string
		wantCleanup bool
	}{
		{"csv", Config{Type: CSVBackend, DataDirectory: dir}, "csv:", false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "payments.db")}, "sqlite:", true},
		{"memory", Config{Type: MemoryBackend}, "memory:", false},
	}
	f := NewFactory(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(context.Background(), tt.config)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Close()

			if !strings.HasPrefix(res.Primary.Name(), tt.wantPrefix) || !strings.HasPrefix(res.BadDebt.Name(), tt.wantPrefix) {
				t.Fatalf("unexpected stores %q, %q", res.Primary.Name(), res.BadDebt.Name())
			}
			if res.Primary.Name() == res.BadDebt.Name() {
				t.Fatalf("tables must be distinct, both are %q", res.Primary.Name())
			}
			if (res.Cleanup != nil) != tt.wantCleanup {
				t.Fatalf("cleanup presence = %v, want %v", res.Cleanup != nil, tt.wantCleanup)
			}
			rows, err := res.Primary.Load(context.Background())
			if err != nil || len(rows) != 0 {
				t.Fatalf("fresh backend should be empty, got %v err=%v", rows, err)
			}
		})
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	f := NewFactory(nil)
	for _, cfg := range []Config{
		{Type: "postgres"},
		{Type: CSVBackend},
		{Type: SQLiteBackend},
		{Type: SheetsBackend},
	} {
		if _, err := f.CreateBackend(context.Background(), cfg); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	app := &config.Config{DataBackend: "csv", DataDir: "/srv/payments", GooglePaymentsSheet: "P"}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != CSVBackend || cfg.DataDirectory != "/srv/payments" || cfg.GooglePaymentsSheet != "P" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
