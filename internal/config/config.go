package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string   `env:"PORT" envDefault:"8080"`
	DBPath        string   `env:"DB_PATH" envDefault:"./data/pomodoro.db"`
	JWTSecret     string   `env:"JWT_SECRET" envDefault:"change-this-secret"`
	TokenTTLHours int      `env:"TOKEN_TTL_HOURS" envDefault:"72"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	MigrationsDir string   `env:"MIGRATIONS_DIR" envDefault:"./migrations"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	DispatchInterval time.Duration `env:"NOTIFY_DISPATCH_INTERVAL" envDefault:"5s"`
	CleanupInterval  time.Duration `env:"NOTIFY_CLEANUP_INTERVAL" envDefault:"24h"`
	Retention        time.Duration `env:"NOTIFY_RETENTION" envDefault:"168h"`
	MaxAttempts      int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
	SendTimeout      time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"10s"`

	RedisAddr    string `env:"REDIS_ADDR"`
	EventsBuffer int    `env:"EVENTS_BUFFER" envDefault:"16"`

	ServiceName  string `env:"SERVICE_NAME" envDefault:"pomodoro-sessions"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.CORSOrigins = cleanList(cfg.CORSOrigins)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	if cfg.TokenTTLHours <= 0 {
		cfg.TokenTTLHours = 72
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.EventsBuffer <= 0 {
		cfg.EventsBuffer = 16
	}
	return cfg, nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func cleanList(values []string) []string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
