package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "HTTP_ADDR", "CART_TTL", "IDEMPOTENCY_TTL", "FLOOR_CURRENCY", "OBJECT_STORE_ENDPOINT", "R2_S3_ENDPOINT", "R2_ACCOUNT_ID"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Env != "development" || cfg.HTTPAddr != ":8087" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.CartTTL != 12*time.Hour || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl defaults %v %v", cfg.CartTTL, cfg.IdempotencyTTL)
	}
	if cfg.Currency != "VND" || !cfg.DatabaseMigrate {
		t.Fatalf("unexpected floor defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CART_TTL", "-5m")
	t.Setenv("IDEMPOTENCY_TTL", "2h")
	t.Setenv("FLOOR_CURRENCY", "idr")
	t.Setenv("DATABASE_AUTO_MIGRATE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("OBJECT_STORE_ENDPOINT", "")
	t.Setenv("R2_S3_ENDPOINT", "")
	t.Setenv("R2_ACCOUNT_ID", "acct")

	cfg := Load()
	if !cfg.Production() {
		t.Fatalf("expected production env")
	}
	if cfg.CartTTL != 12*time.Hour {
		t.Fatalf("expected non-positive ttl to fall back, got %v", cfg.CartTTL)
	}
	if cfg.IdempotencyTTL != 2*time.Hour || cfg.Currency != "IDR" || cfg.DatabaseMigrate {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CorsAllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("unexpected origins %v", cfg.CorsAllowedOrigins)
	}
	if cfg.ObjectStoreEndpoint != "https://acct.r2.cloudflarestorage.com" {
		t.Fatalf("unexpected endpoint %q", cfg.ObjectStoreEndpoint)
	}
}
