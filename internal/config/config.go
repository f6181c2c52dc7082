package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type AppConfig struct {
	HTTPAddr string

	StoreBackend string
	RedisURL     string
	DatabaseURL  string
	SQLitePath   string
	SessionTTL   time.Duration

	ResultWebhookURL  string
	StrictNegotiation bool
	MessagesDir       string

	WSSendBuffer     int
	WSPingInterval   time.Duration
	WSOriginPatterns []string

	PiecesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:       ":8080",
		StoreBackend:   BackendMemory,
		SQLitePath:     "chess.db",
		SessionTTL:     7 * 24 * time.Hour,
		WSSendBuffer:   32,
		WSPingInterval: 30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STORE_BACKEND")); v != "" {
		cfg.StoreBackend = strings.ToLower(v)
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		cfg.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}

	cfg.ResultWebhookURL = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_URL"))
	if v := strings.TrimSpace(os.Getenv("STRICT_NEGOTIATION")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.StrictNegotiation = b
		}
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("WS_SEND_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WSSendBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_PING_INTERVAL")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("WS_PING_INTERVAL: %w", err)
		}
		cfg.WSPingInterval = d
	}

	if v := strings.TrimSpace(os.Getenv("WS_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.WSOriginPatterns = append(cfg.WSOriginPatterns, p)
			}
		}
	}
	cfg.PiecesDir = strings.TrimSpace(os.Getenv("PIECES_DIR"))

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for STORE_BACKEND=redis")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// parseDuration accepts Go durations ("90s", "2h") and plain seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}
