package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string `mapstructure:"PORT"`
	Env                  string `mapstructure:"ENV"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string `mapstructure:"MIGRATIONS_DIR"`
	AnonymizationSecret  string `mapstructure:"ANONYMIZATION_SECRET_KEY"`
	SessionSigningKey    string `mapstructure:"SESSION_SIGNING_KEY"`
	LogLevel             string `mapstructure:"LOG_LEVEL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("LOG_LEVEL", "info")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("ANONYMIZATION_SECRET_KEY")
	v.BindEnv("SESSION_SIGNING_KEY")
	v.BindEnv("LOG_LEVEL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside of
// development the anonymization secret and session signing key must be
// set, otherwise time shifts would be predictable and any token would
// authenticate.
func (c *Config) Validate() error {
	if c.IsDev() {
		return nil
	}
	if c.AnonymizationSecret == "" {
		return fmt.Errorf("ANONYMIZATION_SECRET_KEY is required outside development")
	}
	if len(c.AnonymizationSecret) < 16 {
		return fmt.Errorf("ANONYMIZATION_SECRET_KEY must be at least 16 characters")
	}
	if c.SessionSigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required outside development")
	}
	return nil
}
