// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds all server settings, populated from the environment.
// Every field has a working default so a bare `go run` serves games; the
// Redis journal and Postgres historian stay disabled until their
// addresses are configured.
type Config struct {
	Addr     string `env:"ADDR,default=:8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	RedisAddr string `env:"REDIS_ADDR"`
	RedisDB   int    `env:"REDIS_DB,default=0"`

	DatabaseURL string `env:"DATABASE_URL"`

	TokenExpire time.Duration `env:"TOKEN_EXPIRE_TIME,default=72h"`

	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
}

// Load decodes the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config from environment: %w", err)
	}
	return &cfg, nil
}
