package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr     string
	AdminAddr      string
	AllowedOrigins []string

	BoardSize       int
	DefaultGameTime int
	MaxGameTime     int
	TickInterval    time.Duration
	ReconnectGrace  time.Duration
	IdleRoomTTL     time.Duration
	SweepInterval   time.Duration

	RedisURL    string
	DatabaseURL string

	ResultWebhookURL   string
	ResultWebhookToken string

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":3001",
		AllowedOrigins:  []string{"*"},
		BoardSize:       15,
		DefaultGameTime: 600,
		MaxGameTime:     3600,
		TickInterval:    time.Second,
		ReconnectGrace:  3 * time.Minute,
		IdleRoomTTL:     30 * time.Minute,
		SweepInterval:   5 * time.Minute,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AdminAddr = strings.TrimSpace(os.Getenv("ADMIN_ADDR"))
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if n, ok := positiveInt("BOARD_SIZE"); ok {
		cfg.BoardSize = n
	}
	if n, ok := positiveInt("DEFAULT_GAME_TIME"); ok {
		cfg.DefaultGameTime = n
	}
	if n, ok := positiveInt("MAX_GAME_TIME"); ok {
		cfg.MaxGameTime = n
	}
	if n, ok := positiveInt("TICK_INTERVAL_MS"); ok {
		cfg.TickInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("RECONNECT_GRACE_SEC"); ok {
		cfg.ReconnectGrace = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("IDLE_ROOM_TTL_SEC"); ok {
		cfg.IdleRoomTTL = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("SWEEP_INTERVAL_SEC"); ok {
		cfg.SweepInterval = time.Duration(n) * time.Second
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ResultWebhookURL = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_URL"))
	cfg.ResultWebhookToken = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_TOKEN"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if cfg.BoardSize < 5 || cfg.BoardSize > 25 {
		return nil, fmt.Errorf("BOARD_SIZE must be within 5..25, got %d", cfg.BoardSize)
	}
	if cfg.DefaultGameTime > cfg.MaxGameTime {
		return nil, errors.New("DEFAULT_GAME_TIME exceeds MAX_GAME_TIME")
	}
	if cfg.ListenAddr == cfg.AdminAddr {
		return nil, errors.New("ADMIN_ADDR must differ from LISTEN_ADDR")
	}
	return cfg, nil
}

// ClampGameTime maps a requested game time to the configured bounds.
// Zero means "use the default"; anything else outside 1..MaxGameTime is rejected.
func (c *AppConfig) ClampGameTime(requested int) (int, bool) {
	if requested == 0 {
		return c.DefaultGameTime, true
	}
	if requested < 0 || requested > c.MaxGameTime {
		return 0, false
	}
	return requested, true
}

func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
