package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// MatchingConfig holds the engine thresholds. The values were tuned
// empirically against real gate footage; treat them as defaults.
type MatchingConfig struct {
	AcceptFloor           float64       `mapstructure:"accept_floor"`
	FuzzyFloor            float64       `mapstructure:"fuzzy_floor"`
	NumericProvinceFloor  float64       `mapstructure:"numeric_province_floor"`
	CorroborationBoost    float64       `mapstructure:"corroboration_boost"`
	CorroborationLookback time.Duration `mapstructure:"corroboration_lookback"`
}

type ReconcileConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from an optional config.yaml in the working
// directory plus PARKING_-prefixed environment variables, with defaults
// for every knob.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.dsn", "host=localhost user=parking password=parking dbname=parking port=5432 sslmode=disable")
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("matching.accept_floor", 0.70)
	v.SetDefault("matching.fuzzy_floor", 0.75)
	v.SetDefault("matching.numeric_province_floor", 0.85)
	v.SetDefault("matching.corroboration_boost", 0.05)
	v.SetDefault("matching.corroboration_lookback", "24h")
	v.SetDefault("reconcile.interval", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PARKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, val := range map[string]float64{
		"matching.accept_floor":           c.Matching.AcceptFloor,
		"matching.fuzzy_floor":            c.Matching.FuzzyFloor,
		"matching.numeric_province_floor": c.Matching.NumericProvinceFloor,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, val)
		}
	}
	if c.Matching.CorroborationBoost < 0 {
		return fmt.Errorf("matching.corroboration_boost must not be negative, got %v", c.Matching.CorroborationBoost)
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be positive, got %v", c.Reconcile.Interval)
	}
	return nil
}
