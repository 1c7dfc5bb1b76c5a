package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"APP_PORT", "APP_ENV", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_PRINT", "LOG_LEVEL",
	"STORE_DRIVER", "MONGODB_URI", "MONGODB_DB_NAME",
	"PRINT_TIMEOUT", "PRINT_SWEEP_SCHEDULE", "PRINT_AGENT_SECRET",
	"LEDGER_STRICT_REVISIONS", "BILL_CODE_PREFIX",
	"GOOGLE_SHEETS_CREDENTIALS_PATH", "GOOGLE_SHEET_DATABASE_ID", "GOOGLE_SHEET_SALES_TAB",
	"REPORT_CRON_SCHEDULE", "TIMEZONE",
}

// clearEnv unsets every key Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("TIMEZONE", "UTC")
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.PrintRateLimit != "30-M" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Store.Driver != StoreMongoDB || cfg.MongoDB.DBName != "restopos" {
		t.Fatalf("store = %+v / %+v", cfg.Store, cfg.MongoDB)
	}
	if cfg.Print.Timeout != 20*time.Second || cfg.Print.SweepSchedule != "@every 30s" {
		t.Fatalf("print = %+v", cfg.Print)
	}
	if cfg.Ledger.StrictRevisions || cfg.Ledger.CodePrefix != "HS" {
		t.Fatalf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Sheets.Enabled() {
		t.Fatalf("sheets enabled without credentials")
	}
	if cfg.Log.Development {
		t.Fatalf("development logging on in production")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("PRINT_TIMEOUT", "5s")
	t.Setenv("PRINT_SWEEP_SCHEDULE", "")
	t.Setenv("LEDGER_STRICT_REVISIONS", "true")
	t.Setenv("BILL_CODE_PREFIX", "TB")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := strings.Join(cfg.Server.AllowedOrigins, "|"); got != "http://a.test|http://b.test" {
		t.Fatalf("origins = %q", got)
	}
	if cfg.Store.Driver != StoreMemory || !cfg.Log.Development {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Print.Timeout != 5*time.Second || cfg.Print.SweepSchedule != "" {
		t.Fatalf("print = %+v", cfg.Print)
	}
	if !cfg.Ledger.StrictRevisions || cfg.Ledger.CodePrefix != "TB" {
		t.Fatalf("ledger = %+v", cfg.Ledger)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("APP_PORT=9999\nSTORE_DRIVER=memory\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9999" || cfg.Store.Driver != StoreMemory {
		t.Fatalf("cfg = %+v", cfg.Server)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"driver", "STORE_DRIVER", "postgres"},
		{"timeout", "PRINT_TIMEOUT", "soon"},
		{"negative timeout", "PRINT_TIMEOUT", "-1s"},
		{"strict flag", "LEDGER_STRICT_REVISIONS", "maybe"},
		{"rate", "RATE_LIMIT_PRINT", "lots"},
		{"sweep schedule", "PRINT_SWEEP_SCHEDULE", "every now and then"},
		{"report schedule", "REPORT_CRON_SCHEDULE", "61 * * * *"},
		{"half sheets config", "GOOGLE_SHEET_DATABASE_ID", "sheet-id"},
		{"timezone", "TIMEZONE", "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(missingEnvFile(t)); err == nil {
				t.Fatalf("Load accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}
