package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/agenthunt.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// StoreEngine selects where session snapshots live: sqlite, redis or file.
	StoreEngine string `env:"STORE_ENGINE" envDefault:"sqlite"`
	DataDir     string `env:"DATA_DIR" envDefault:"data/sessions"`
	RedisURL    string `env:"REDIS_URL"`

	CataloguePath    string        `env:"CATALOGUE_PATH"`
	AutosaveInterval time.Duration `env:"AUTOSAVE_INTERVAL" envDefault:"30s"`
	ShareTTL         time.Duration `env:"SHARE_TTL" envDefault:"24h"`
	PublicURL        string        `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	QREndpoint       string        `env:"QR_ENDPOINT" envDefault:"https://api.qrserver.com/v1/create-qr-code/"`

	// Mission control is disabled unless a bcrypt hash is configured.
	ControlUser         string `env:"CONTROL_USER" envDefault:"control"`
	ControlPasswordHash string `env:"CONTROL_PASSWORD_HASH"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.StoreEngine == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("STORE_ENGINE=redis requires REDIS_URL")
	}
	if cfg.AutosaveInterval <= 0 {
		return nil, fmt.Errorf("AUTOSAVE_INTERVAL must be positive, got %s", cfg.AutosaveInterval)
	}
	return &cfg, nil
}
