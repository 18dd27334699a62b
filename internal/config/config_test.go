package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RECEIPT_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.ReceiptTTLSeconds != 900 {
		t.Fatalf("receipt ttl = %d", cfg.ReceiptTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RECEIPT_TTL_SECONDS", "60")
	t.Setenv("AUTH_SECRET", "  padded-secret  ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.ReceiptTTLSeconds != 60 {
		t.Fatalf("receipt ttl = %d", cfg.ReceiptTTLSeconds)
	}
	if cfg.AuthSecret != "padded-secret" {
		t.Fatalf("auth secret = %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsGarbageTTL(t *testing.T) {
	t.Setenv("RECEIPT_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.ReceiptTTLSeconds != 900 {
		t.Fatalf("receipt ttl = %d, want fallback 900", cfg.ReceiptTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want fallback 480", cfg.AccessTokenTTLMinutes)
	}
}
