// Package config loads process configuration from INTEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

// Prefix of every environment variable read by Load
const Prefix = "INTEL"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the process configuration shared by every command
type Config struct {
	DB       DBConfig       `envconfig:"DB"`
	Forecast ForecastConfig `envconfig:"FORECAST"`
	Log      LogConfig      `envconfig:"LOG"`

	// CacheSize is the number of series kept by the store cache. 0 disables the cache.
	CacheSize int `envconfig:"CACHE_SIZE" default:"512" validate:"min=0"`

	// MetricsTextfile, when set, receives a Prometheus text dump when a command finishes
	MetricsTextfile string `envconfig:"METRICS_TEXTFILE"`
}

type DBConfig struct {
	Driver             string        `envconfig:"DRIVER" default:"sqlite3" validate:"oneof=sqlite3 postgres"`
	DSN                string        `envconfig:"DSN" default:"intel.db" validate:"required"`
	MaxConnections     int           `envconfig:"MAX_CONNECTIONS" default:"10" validate:"min=1"`
	MaxIdleConnections int           `envconfig:"MAX_IDLE_CONNECTIONS" default:"2" validate:"min=0"`
	ConnMaxLifetime    time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	ConnectTimeout     time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s" validate:"gt=0"`
}

// ForecastConfig holds the defaults of the forecast and backtest commands. Command line
// flags override them.
type ForecastConfig struct {
	Model        string `envconfig:"MODEL" default:"gbm" validate:"oneof=gbm xgb lasso ols sarimax sarima"`
	Freq         string `envconfig:"FREQ" default:"auto" validate:"frequency"`
	Horizon      int    `envconfig:"HORIZON" default:"12" validate:"min=1"`
	MinTrainLen  int    `envconfig:"MIN_TRAIN_LEN" default:"60" validate:"min=1"`
	MaxAnchors   int    `envconfig:"MAX_ANCHORS" default:"3" validate:"min=1"`
	AnchorStep   int    `envconfig:"ANCHOR_STEP" default:"12" validate:"min=1"`
	Lags         []int  `envconfig:"LAGS" default:"1,2,3,6,12" validate:"min=1,dive,min=1"`
	Select       string `envconfig:"SELECT" default:"none" validate:"oneof=none greedy importance lasso"`
	MaxFeatures  int    `envconfig:"MAX_FEATURES" default:"0" validate:"min=0"`
	Universal    bool   `envconfig:"UNIVERSAL" default:"false"`
	Extrapolator string `envconfig:"EXTRAPOLATOR" default:"carry" validate:"oneof=carry carry-forward flat drift"`
}

type LogConfig struct {
	Level string `envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
}

// Load reads the environment and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("unable to process environment: %v, %w", err, ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("frequency", validFrequency); err != nil {
		return fmt.Errorf("registering frequency validation: %v, %w", err, ErrInvalidConfig)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%v, %w", err, ErrInvalidConfig)
	}
	return nil
}

// validFrequency accepts every name series.ParseFrequency does, "auto" included
func validFrequency(fl validator.FieldLevel) bool {
	_, err := series.ParseFrequency(fl.Field().String())
	return err == nil
}

// StoreConfig converts the database settings into store connection settings
func (c *Config) StoreConfig() store.DBConfig {
	return store.DBConfig{
		Driver:             c.DB.Driver,
		DSN:                c.DB.DSN,
		MaxConnections:     c.DB.MaxConnections,
		MaxIdleConnections: c.DB.MaxIdleConnections,
		ConnMaxLifetime:    c.DB.ConnMaxLifetime,
		ConnectTimeout:     c.DB.ConnectTimeout,
	}
}

// SlogLevel maps the configured level name to a slog level
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
