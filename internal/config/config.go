// Package config loads service configuration from an optional file and
// GEODESY_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/internal/observability"
)

// EnvPrefix is prepended to every environment override, e.g.
// GEODESY_ELLIPSOID_DEFAULT_MODEL.
const EnvPrefix = "GEODESY"

// Config is the top-level service configuration.
type Config struct {
	Ellipsoid EllipsoidConfig `mapstructure:"ellipsoid"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Server    ServerConfig    `mapstructure:"server"`
}

// EllipsoidConfig selects the default model and adds custom ones.
type EllipsoidConfig struct {
	DefaultModel  string        `mapstructure:"default_model"  validate:"required"`
	MaxIterations int           `mapstructure:"max_iterations" validate:"gte=1,lte=100000"`
	Custom        []CustomModel `mapstructure:"custom"         validate:"dive"`
}

// CustomModel describes an extra ellipsoid registered at startup.
type CustomModel struct {
	Name string  `mapstructure:"name" validate:"required"`
	A    float64 `mapstructure:"a"    validate:"gt=0"`
	F    float64 `mapstructure:"f"    validate:"gte=0,lt=1"`
	J2   float64 `mapstructure:"j2"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"        validate:"oneof=debug info warn warning error"`
	Format     string `mapstructure:"format"       validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups"  validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"     validate:"oneof=stdout otlp otlpgrpc"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// ServerConfig holds listener addresses. RateLimit is requests per second
// across all RPCs; zero disables limiting.
type ServerConfig struct {
	GRPCAddr    string  `mapstructure:"grpc_addr"    validate:"required"`
	MetricsAddr string  `mapstructure:"metrics_addr"`
	RateLimit   float64 `mapstructure:"rate_limit"   validate:"gte=0"`
	RateBurst   int     `mapstructure:"rate_burst"   validate:"gte=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Ellipsoid: EllipsoidConfig{
			DefaultModel:  ellipsoid.DefaultModelName,
			MaxIterations: 200,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "geodesy",
			SampleRatio: 1,
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
			RateBurst:   100,
		},
	}
}

// Logging converts the log section into a logger config.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// TracingConfig converts the tracing section for observability.InitTracing.
func (c Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// RegisterModels adds the custom ellipsoids to reg. Models that are already
// present are reported as errors.
func (c Config) RegisterModels(reg *ellipsoid.Registry) error {
	var errs []error
	for _, m := range c.Ellipsoid.Custom {
		if err := reg.Register(ellipsoid.New(m.Name, m.A, m.F, m.J2)); err != nil {
			errs = append(errs, fmt.Errorf("ellipsoid %q: %w", m.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Loader reads configuration and keeps the underlying viper instance around
// so the file can be watched.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate

	mu  sync.RWMutex
	cfg Config
}

// NewLoader prepares a loader with defaults and environment binding.
// path may be empty, in which case only defaults and the environment apply.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v, validate: validator.New()}
}

// Load reads the file (when configured), applies environment overrides and
// validates the result.
func (l *Loader) Load() (Config, error) {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := l.decode()
	if err != nil {
		return Config{}, err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch reloads the file on change. Valid reloads update the global log level
// and are passed to onChange; invalid ones are logged and ignored.
func (l *Loader) Watch(log logging.Logger, onChange func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	l.v.OnConfigChange(func(event fsnotify.Event) {
		ctx := logging.ContextWithRequestID(context.Background(), "config-reload")
		cfg, err := l.decode()
		if err != nil {
			log.Warn(ctx, "config reload rejected", logging.String("file", event.Name), logging.Err(err))
			return
		}

		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()

		logging.SetLevel(cfg.Log.Level)
		log.Info(ctx, "config reloaded", logging.String("file", event.Name), logging.String("log_level", cfg.Log.Level))
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Tracing.Exporter = strings.ToLower(cfg.Tracing.Exporter)

	if err := l.validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Load is a convenience wrapper around NewLoader(path).Load().
func Load(path string) (Config, error) {
	return NewLoader(path).Load()
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("ellipsoid.default_model", d.Ellipsoid.DefaultModel)
	v.SetDefault("ellipsoid.max_iterations", d.Ellipsoid.MaxIterations)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
}
