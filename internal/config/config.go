// Package config loads service configuration from the environment with an
// optional YAML overlay. The result is built once in main and passed down;
// nothing here is package-level mutable state.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	JWTSecret   string        `yaml:"jwtSecret"`
	JWTIssuer   string        `yaml:"jwtIssuer"`
	JWTAudience string        `yaml:"jwtAudience"`
	AccessTTL   time.Duration `yaml:"accessTtl"`
	RefreshTTL  time.Duration `yaml:"refreshTtl"`

	GuardTimeout      time.Duration `yaml:"guardTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ReadRetryAttempts int           `yaml:"readRetryAttempts"`
	ReadRetryBackoff  time.Duration `yaml:"readRetryBackoff"`

	WebhookMaxAttempts int `yaml:"webhookMaxAttempts"`

	LoginRatePerMin int `yaml:"loginRatePerMin"`
	LoginBurst      int `yaml:"loginBurst"`

	Migrate bool `yaml:"migrate"`
}

// Load reads CONFIG_FILE (if set) then overlays environment variables.
// Env wins so deployments can override a checked-in file.
func Load() (Config, error) {
	cfg := Config{
		Addr:               ":8080",
		JWTIssuer:          "rentdesk",
		JWTAudience:        "rentdesk-api",
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		GuardTimeout:       3 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadRetryAttempts:  3,
		ReadRetryBackoff:   50 * time.Millisecond,
		WebhookMaxAttempts: 10,
		LoginRatePerMin:    30,
		LoginBurst:         10,
		Migrate:            true,
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	strVar(&cfg.DatabaseURL, "DATABASE_URL")
	strVar(&cfg.RedisURL, "REDIS_URL")
	strVar(&cfg.JWTSecret, "JWT_SECRET")
	strVar(&cfg.JWTIssuer, "JWT_ISSUER")
	strVar(&cfg.JWTAudience, "JWT_AUDIENCE")
	durVar(&cfg.AccessTTL, "ACCESS_TTL")
	durVar(&cfg.RefreshTTL, "REFRESH_TTL")
	durVar(&cfg.GuardTimeout, "GUARD_TIMEOUT")
	durVar(&cfg.WriteTimeout, "WRITE_TIMEOUT")
	intVar(&cfg.ReadRetryAttempts, "READ_RETRY_ATTEMPTS")
	durVar(&cfg.ReadRetryBackoff, "READ_RETRY_BACKOFF")
	intVar(&cfg.WebhookMaxAttempts, "WEBHOOK_MAX_ATTEMPTS")
	intVar(&cfg.LoginRatePerMin, "LOGIN_RATE_PER_MIN")
	intVar(&cfg.LoginBurst, "LOGIN_BURST")
	if v := os.Getenv("DB_MIGRATE"); v == "false" {
		cfg.Migrate = false
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: JWT_SECRET is required")
	}
	return cfg, nil
}

func strVar(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func durVar(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
