package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE_BACKEND", "REDIS_URL", "DATABASE_URL", "SESSION_TTL", "STRICT_NEGOTIATION", "WS_SEND_BUFFER", "WS_PING_INTERVAL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StoreBackend != BackendMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StrictNegotiation {
		t.Fatalf("strict negotiation must default to off")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_TTL", "3600")
	t.Setenv("WS_PING_INTERVAL", "15s")
	t.Setenv("STRICT_NEGOTIATION", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendRedis || cfg.SessionTTL != time.Hour || cfg.WSPingInterval != 15*time.Second || !cfg.StrictNegotiation {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRequiresBackendURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
	t.Setenv("STORE_BACKEND", "mongo")
	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestLoadOrigins(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("WS_ORIGINS", " example.com, *.example.org ,,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.WSOriginPatterns) != 2 || cfg.WSOriginPatterns[1] != "*.example.org" {
		t.Fatalf("origins = %q", cfg.WSOriginPatterns)
	}
}
