package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config - структура для хранения конфигураций приложения
type Config struct {
	ServerAddress  string        `mapstructure:"SERVER_ADDRESS"`
	PostgresConn   string        `mapstructure:"POSTGRES_CONN"`
	StorageDriver  string        `mapstructure:"STORAGE_DRIVER"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CloserSchedule string        `mapstructure:"CLOSER_SCHEDULE"` // пустая строка отключает закрытие по сроку
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	LogFormat      string        `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]interface{}{
	"SERVER_ADDRESS":  "0.0.0.0:8080",
	"POSTGRES_CONN":   "",
	"STORAGE_DRIVER":  DriverPostgres,
	"REQUEST_TIMEOUT": "5s",
	"CLOSER_SCHEDULE": "@every 1m",
	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "text",
}

// LoadConfig читает необязательный app.env из path, переменные окружения
// имеют приоритет над файлом.
func LoadConfig(path string) (cfg Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, errors.Wrap(err, "read config file")
		}
	}
	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.CloserSchedule = strings.TrimSpace(cfg.CloserSchedule)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.PostgresConn == "" {
			return errors.New("POSTGRES_CONN is required for the postgres storage driver")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.RequestTimeout < 0 {
		return errors.New("REQUEST_TIMEOUT must not be negative")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level разбирает LOG_LEVEL (debug, info, warn, error)
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, errors.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return lvl, nil
}
