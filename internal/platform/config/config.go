package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean.
type Server struct {
	Addr          string        `env:"CAREBRIDGE_ADDR" envDefault:":8080"`
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisURL      string        `env:"REDIS_URL"`
	NATSURL       string        `env:"NATS_URL"`
	EnvelopeTTL   time.Duration `env:"ENVELOPE_TTL" envDefault:"336h"` // 14 days
	PublicBaseURL string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	DevAuth       bool          `env:"CAREBRIDGE_DEV_AUTH" envDefault:"false"`
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// EnvelopeTTLDays converts the configured TTL to whole days, the unit the
// envelope engine works in.
func (s Server) EnvelopeTTLDays() int {
	days := int(s.EnvelopeTTL / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return days
}
