package config

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the connection used for the reset notification channel.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	ResetChannel string        `mapstructure:"reset_channel"` // LISTEN/NOTIFY channel carrying resets
	MinReconnect time.Duration `mapstructure:"min_reconnect"`
	MaxReconnect time.Duration `mapstructure:"max_reconnect"`
}

// ParameterLookup resolves a named secret.
type ParameterLookup func(ctx context.Context, name string, decrypt bool) (string, error)

// DSN builds the connection string. In prod, host and credentials come from
// AWS SSM Parameter Store.
func (cfg *PostgresConfig) DSN(ctx context.Context, env string) (string, error) {
	return cfg.dsn(ctx, env, getParameterStoreValue)
}

func (cfg *PostgresConfig) dsn(ctx context.Context, env string, lookup ParameterLookup) (string, error) {
	host, user, password := cfg.Host, cfg.User, cfg.Password

	if env == "prod" {
		var err error
		if host, err = lookup(ctx, "PRICESTATE_DB_HOST", true); err != nil {
			return "", fmt.Errorf("resolve db host: %w", err)
		}
		if user, err = lookup(ctx, "PRICESTATE_DB_USER", true); err != nil {
			return "", fmt.Errorf("resolve db user: %w", err)
		}
		if password, err = lookup(ctx, "PRICESTATE_DB_PASSWORD", true); err != nil {
			return "", fmt.Errorf("resolve db password: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.DBName, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn, nil
}

func getParameterStoreValue(ctx context.Context, parameterName string, decrypt bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(cfg)

	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", parameterName, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", parameterName)
	}
	return *result.Parameter.Value, nil
}
