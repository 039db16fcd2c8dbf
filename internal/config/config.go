// Package config handles loading and validation of application
// configuration from environment variables and .env files.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration, populated from the
// environment with the RECALL_ prefix (RECALL_SERVER_PORT and so on).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	LogLevel     string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	ReadTimeout  int    `mapstructure:"read_timeout" validate:"min=1"`
	WriteTimeout int    `mapstructure:"write_timeout" validate:"min=1"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig holds the single-user authentication settings. Passphrase
// is a bcrypt hash of the shared secret; clients exchange the
// passphrase for a JWT at /api/auth/token.
type AuthConfig struct {
	PassphraseHash   string `mapstructure:"passphrase_hash" validate:"required"`
	JWTSecret        string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMin int    `mapstructure:"token_lifetime_minutes" validate:"min=1"`
}

// TokenLifetime returns the configured JWT lifetime.
func (a AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(a.TokenLifetimeMin) * time.Minute
}

// SchedulerConfig holds collection-level scheduling defaults applied
// when a fresh database is initialized.
type SchedulerConfig struct {
	RolloverHour     int  `mapstructure:"rollover_hour" validate:"min=0,max=23"`
	CollapseTimeSecs int  `mapstructure:"collapse_time_seconds" validate:"min=0"`
	DayLearnFirst    bool `mapstructure:"day_learn_first"`
}

// Load reads configuration from the environment, applying defaults
// first and validating the result. A .env file in the working
// directory is loaded when present so local development does not need
// exported variables.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RECALL")
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("scheduler.rollover_hour", 4)
	v.SetDefault("scheduler.collapse_time_seconds", 1200)
	v.SetDefault("scheduler.day_learn_first", false)
}

// bindEnvVars maps nested keys to flat RECALL_* variables. Viper's
// AutomaticEnv does not walk nested structs during Unmarshal, so each
// key is bound explicitly.
func bindEnvVars(v *viper.Viper) {
	keys := []struct{ key, env string }{
		{"server.port", "RECALL_SERVER_PORT"},
		{"server.log_level", "RECALL_LOG_LEVEL"},
		{"server.read_timeout", "RECALL_SERVER_READ_TIMEOUT"},
		{"server.write_timeout", "RECALL_SERVER_WRITE_TIMEOUT"},
		{"database.url", "RECALL_DATABASE_URL"},
		{"auth.passphrase_hash", "RECALL_AUTH_PASSPHRASE_HASH"},
		{"auth.jwt_secret", "RECALL_AUTH_JWT_SECRET"},
		{"auth.token_lifetime_minutes", "RECALL_AUTH_TOKEN_LIFETIME_MINUTES"},
		{"scheduler.rollover_hour", "RECALL_SCHEDULER_ROLLOVER_HOUR"},
		{"scheduler.collapse_time_seconds", "RECALL_SCHEDULER_COLLAPSE_TIME_SECONDS"},
		{"scheduler.day_learn_first", "RECALL_SCHEDULER_DAY_LEARN_FIRST"},
	}
	for _, k := range keys {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(k.key, k.env)
	}
}
