//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	t.Run("should apply defaults to a minimal file", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, `
database:
  url: postgres://localhost/x402
x402:
  facilitator_url: https://x402.org/facilitator
  pay_to: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
payout:
  dry_run: true
`)

		// --- Act ---
		cfg, err := Load(path, false)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.HTTP.Port != 8080 {
			t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
		}
		if cfg.X402.Network != "base-sepolia" {
			t.Errorf("expected default network base-sepolia, got %s", cfg.X402.Network)
		}
		if cfg.Webhook.Timeout != 10*time.Second {
			t.Errorf("expected webhook timeout 10s, got %s", cfg.Webhook.Timeout)
		}
		if cfg.Scheduler.ExpiryCheckCron != "@every 1h" {
			t.Errorf("unexpected expiry cron %q", cfg.Scheduler.ExpiryCheckCron)
		}
		if cfg.Scheduler.ExpiringWithinDays != 3 {
			t.Errorf("expected 3 expiring days, got %d", cfg.Scheduler.ExpiringWithinDays)
		}
	})

	t.Run("should let environment variables override the file", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, `
database:
  url: postgres://file/x402
x402:
  facilitator_url: https://file.example
  pay_to: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
payout:
  dry_run: true
`)
		t.Setenv("DATABASE_URL", "postgres://env/x402")
		t.Setenv("FACILITATOR_URL", "https://env.example")

		// --- Act ---
		cfg, err := Load(path, true)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Database.URL != "postgres://env/x402" {
			t.Errorf("expected env database url, got %s", cfg.Database.URL)
		}
		if cfg.X402.FacilitatorURL != "https://env.example" {
			t.Errorf("expected env facilitator url, got %s", cfg.X402.FacilitatorURL)
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev flag to be carried into runtime config")
		}
	})

	t.Run("should reject a pay_to that is not an address", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, `
database:
  url: postgres://localhost/x402
x402:
  facilitator_url: https://x402.org/facilitator
  pay_to: "merchant"
payout:
  dry_run: true
`)

		// --- Act ---
		_, err := Load(path, false)

		// --- Assert ---
		if err == nil {
			t.Fatal("expected a validation error, got nil")
		}
	})

	t.Run("should require signer settings when not a dry run", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, `
database:
  url: postgres://localhost/x402
x402:
  facilitator_url: https://x402.org/facilitator
  pay_to: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
`)

		// --- Act ---
		_, err := Load(path, false)

		// --- Assert ---
		if err == nil {
			t.Fatal("expected a validation error, got nil")
		}
	})
}
