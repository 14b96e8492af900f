package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the homework service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	LogLevel             string
	DatabaseURL          string
	DatabaseMaxOpenConns int
	DatabaseMaxIdleConns int
	RedisURL             string
	NATSURL              string
	EventsChannel        string
	DefaultPageSize      int
	MaxPageSize          int
	RateLimitMax         int
	RateLimitWindow      time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HOMEWORK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Homework API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("events.channel", "homework")
	v.SetDefault("pagination.default_size", 20)
	v.SetDefault("pagination.max_size", 100)
	v.SetDefault("ratelimit.max", 60)
	v.SetDefault("ratelimit.window", "1m")

	windowString := v.GetString("ratelimit.window")
	if windowString == "" {
		windowString = "1m"
	}

	window, err := time.ParseDuration(windowString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate limit window: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		LogLevel:             strings.ToLower(v.GetString("log.level")),
		DatabaseURL:          v.GetString("database.url"),
		DatabaseMaxOpenConns: v.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns: v.GetInt("database.max_idle_conns"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		EventsChannel:        strings.TrimSpace(v.GetString("events.channel")),
		DefaultPageSize:      v.GetInt("pagination.default_size"),
		MaxPageSize:          v.GetInt("pagination.max_size"),
		RateLimitMax:         v.GetInt("ratelimit.max"),
		RateLimitWindow:      window,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = 20
	}

	return cfg, nil
}
