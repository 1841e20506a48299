// Package config loads client and relay settings from the environment,
// after merging an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
)

const (
	DefaultHost       = "127.0.0.1:8000"
	DefaultRelayAddr  = ":8000"
	DefaultTypingIdle = 2 * time.Second
	DefaultRelayRate  = 20
)

type Config struct {
	Host       string
	APIBase    string
	Token      string
	KeyFile    string
	AudioMode  crypto.AudioMode
	TypingIdle time.Duration
	ValkeyAddr string

	RelayAddr      string
	RelayJWTSecret string
	RelayRate      float64
	RelayOrigin    string

	LogLevel  logrus.Level
	LogFormat string
}

// Load reads the given .env files (default ".env"; missing files are
// ignored) and then the process environment. Variables already set in the
// environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Host:           env("CHAT_HOST", DefaultHost),
		Token:          os.Getenv("CHAT_TOKEN"),
		KeyFile:        env("CHAT_KEY_FILE", "securechat.pem"),
		ValkeyAddr:     os.Getenv("VALKEY_ADDR"),
		RelayAddr:      env("RELAY_ADDR", DefaultRelayAddr),
		RelayJWTSecret: os.Getenv("RELAY_JWT_SECRET"),
		RelayOrigin:    os.Getenv("RELAY_ORIGIN"),
		LogFormat:      strings.ToLower(env("LOG_FORMAT", "text")),
	}
	cfg.APIBase = env("CHAT_API_BASE", "http://"+cfg.Host+"/api/")

	mode, err := crypto.ParseAudioMode(os.Getenv("CHAT_AUDIO_MODE"))
	if err != nil {
		return nil, fmt.Errorf("CHAT_AUDIO_MODE: %w", err)
	}
	cfg.AudioMode = mode

	cfg.TypingIdle = DefaultTypingIdle
	if v := os.Getenv("CHAT_TYPING_IDLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("CHAT_TYPING_IDLE: invalid duration %q", v)
		}
		cfg.TypingIdle = d
	}

	cfg.RelayRate = DefaultRelayRate
	if v := os.Getenv("RELAY_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("RELAY_RATE: invalid rate %q", v)
		}
		cfg.RelayRate = r
	}

	cfg.LogLevel = logrus.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		lvl, err := logrus.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT: must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// ConfigureLogging applies the level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	logrus.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
