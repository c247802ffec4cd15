// Package config loads chatd settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host            string        `env:"CHAT_HOST"`
	Port            int           `env:"CHAT_PORT,default=9000"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	SendBuffer      int           `env:"CHAT_SEND_BUFFER,default=64"`
	MaxMessageRunes int           `env:"CHAT_MAX_MESSAGE_RUNES,default=2000"`
	JournalPath     string        `env:"CHAT_JOURNAL_PATH"`
	JournalBuffer   int           `env:"CHAT_JOURNAL_BUFFER,default=256"`
	ShutdownTimeout time.Duration `env:"CHAT_SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads an optional .env file then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("CHAT_PORT must be in 1..65535, got %d", c.Port))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.MaxMessageRunes <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_MAX_MESSAGE_RUNES must be positive, got %d", c.MaxMessageRunes))
	}
	if c.JournalBuffer <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_JOURNAL_BUFFER must be positive, got %d", c.JournalBuffer))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
