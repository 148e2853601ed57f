package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Reset    ResetConfig    `mapstructure:"reset"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // "dev" or "prod"
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type FeedConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URL               string        `mapstructure:"url"`
	Format            string        `mapstructure:"format"`   // "native" or "bybit"
	RESTURL           string        `mapstructure:"rest_url"` // bybit symbol discovery when topics is empty
	Category          string        `mapstructure:"category"` // bybit instrument category, e.g. "linear"
	Topics            []string      `mapstructure:"topics"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
}

type ServerConfig struct {
	Addr       string        `mapstructure:"addr"`
	SendBuffer int           `mapstructure:"send_buffer"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
}

type ResetConfig struct {
	Cron     string `mapstructure:"cron"`     // session reset schedule, empty disables
	Timezone string `mapstructure:"timezone"` // location the cron spec is evaluated in
}

// Load loads application configuration using Viper.
// It reads path (a yaml file, optional) and overrides with environment
// variables, e.g. FEED_URL for feed.url.
func Load(path string) (*Config, error) {
	// .env only fills the process environment; real env vars win
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v,
		"app.env",
		"log.level", "log.format", "log.output_file", "log.environment",
		"feed.enabled", "feed.url", "feed.format", "feed.rest_url", "feed.category", "feed.topics", "feed.reconnect_interval", "feed.max_reconnects",
		"server.addr", "server.send_buffer", "server.write_wait", "server.pong_wait",
		"postgres.enabled", "postgres.host", "postgres.port", "postgres.user", "postgres.password",
		"postgres.dbname", "postgres.sslmode", "postgres.timezone", "postgres.reset_channel",
		"postgres.min_reconnect", "postgres.max_reconnect",
		"reset.cron", "reset.timezone",
	)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Feed.Enabled && c.Feed.URL == "" {
		return errors.New("feed.url is required when the feed is enabled")
	}
	switch c.Feed.Format {
	case "", "native", "bybit":
	default:
		return fmt.Errorf("feed.format must be native or bybit, got %q", c.Feed.Format)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if c.Postgres.Enabled && c.Postgres.ResetChannel == "" {
		return errors.New("postgres.reset_channel cannot be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.format", "native")
	v.SetDefault("feed.rest_url", "https://api.bybit.com")
	v.SetDefault("feed.category", "linear")
	v.SetDefault("feed.reconnect_interval", 3*time.Second)
	v.SetDefault("feed.max_reconnects", 5)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.write_wait", 5*time.Second)
	v.SetDefault("server.pong_wait", 60*time.Second)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.reset_channel", "price_reset")
	v.SetDefault("postgres.min_reconnect", 10*time.Second)
	v.SetDefault("postgres.max_reconnect", time.Minute)

	v.SetDefault("reset.cron", "0 0 * * *")
	v.SetDefault("reset.timezone", "UTC")
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
