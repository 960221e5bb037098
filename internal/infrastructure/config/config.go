package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/meridianpay/risk-engine/internal/domain/errors"
)

// DefaultConfigPath is consulted when no explicit path is given
const DefaultConfigPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Fraud     FraudConfig     `koanf:"fraud"`
	Security  SecurityConfig  `koanf:"security"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// FraudConfig carries the tunable scoring policy. Mapped onto the fraud
// service thresholds at startup.
type FraudConfig struct {
	BlockScore             float64       `koanf:"block_score"`
	ChallengeScore         float64       `koanf:"challenge_score"`
	ReviewScore            float64       `koanf:"review_score"`
	EnhancedChallengeScore float64       `koanf:"enhanced_challenge_score"`
	EnhancedReviewScore    float64       `koanf:"enhanced_review_score"`
	HighValueAmount        float64       `koanf:"high_value_amount"`
	HighValueCurrency      string        `koanf:"high_value_currency"`
	VelocityWindow         time.Duration `koanf:"velocity_window"`
	VelocityCount          int           `koanf:"velocity_count"`
	RapidWindow            time.Duration `koanf:"rapid_window"`
	RapidGap               time.Duration `koanf:"rapid_gap"`
	MuleWindow             time.Duration `koanf:"mule_window"`
	MuleRatio              float64       `koanf:"mule_ratio"`
	MuleMinDeposit         float64       `koanf:"mule_min_deposit"`
	MaxTravelSpeedKmh      float64       `koanf:"max_travel_speed_kmh"`
	HistoryLookback        time.Duration `koanf:"history_lookback"`
	ModelTimeout           time.Duration `koanf:"model_timeout"`
	ModelKind              string        `koanf:"model_kind"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"`
	SampleRate   float64 `koanf:"sample_rate"`
}

// Load reads configuration in three layers: compiled defaults, an optional
// YAML file, then RISK_-prefixed environment variables. Later layers win.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, errors.NewConfigurationError("defaults", "loading defaults failed").WithCause(err)
	}

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.NewConfigurationError("file", fmt.Sprintf("parsing %s failed", path)).WithCause(err)
		}
	}

	// Double underscore separates nesting levels so leaf keys may contain
	// single underscores, e.g. RISK_FRAUD__BLOCK_SCORE -> fraud.block_score.
	if err := k.Load(env.Provider("RISK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RISK_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, errors.NewConfigurationError("env", "loading environment variables failed").WithCause(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.NewConfigurationError("unmarshal", "unmarshaling config failed").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Fraud: FraudConfig{
			BlockScore:             85,
			ChallengeScore:         60,
			ReviewScore:            40,
			EnhancedChallengeScore: 50,
			EnhancedReviewScore:    30,
			HighValueAmount:        10000,
			HighValueCurrency:      "USD",
			VelocityWindow:         5 * time.Minute,
			VelocityCount:          5,
			RapidWindow:            5 * time.Minute,
			RapidGap:               30 * time.Second,
			MuleWindow:             6 * time.Hour,
			MuleRatio:              0.9,
			MuleMinDeposit:         5000,
			MaxTravelSpeedKmh:      900,
			HistoryLookback:        24 * time.Hour,
			ModelTimeout:           500 * time.Millisecond,
			ModelKind:              "heuristic",
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "risk-engine",
			SampleRate:  0.1,
		},
	}
}

// Validate rejects configurations that cannot start a working service.
// Scoring thresholds get a second, deeper validation when mapped onto the
// fraud service.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewConfigurationError("server.port", fmt.Sprintf("invalid port %d", c.Server.Port))
	}
	if c.Environment == "production" {
		if c.Database.URL == "" {
			return errors.NewConfigurationError("database.url", "database URL is required in production")
		}
		if c.Security.JWTSecret == "" {
			return errors.NewConfigurationError("security.jwt_secret", "JWT secret is required in production")
		}
	}
	switch c.Fraud.ModelKind {
	case "heuristic", "noop":
	default:
		return errors.NewConfigurationError("fraud.model_kind", fmt.Sprintf("unknown model kind %q", c.Fraud.ModelKind))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.NewConfigurationError("telemetry.sample_rate", "sample rate must be in [0,1]")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
