// Package config loads the broker's YAML configuration via viper, the same
// defaults-then-unmarshal shape used throughout this codebase's ancestry.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrelstream/broker/internal/apperror"
	"github.com/kestrelstream/broker/pkg/models"
)

// Config is the process-wide, read-only-after-load configuration.
type Config struct {
	Server  ServerConfig
	SRS     SRSConfig
	APIKeys []string `mapstructure:"api_keys"`
	Streams []models.StreamDescriptor
	Reaper  ReaperConfig

	Transcoder TranscoderConfig
	Logging    LoggingConfig

	// The following blocks are each independently optional; their zero
	// value disables the corresponding ambient feature with no effect on
	// core correctness.
	Redis   RedisConfig
	Events  EventsConfig
	Audit   AuditConfig
	Tracing TracingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SRSConfig describes the external origin.
type SRSConfig struct {
	APIURL              string `mapstructure:"api_url"`
	PlaybackURLTemplate string `mapstructure:"playback_url_template"`
}

type ReaperConfig struct {
	Interval      time.Duration
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
}

type TranscoderConfig struct {
	BinPath string `mapstructure:"bin_path"`
}

type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig enables the origin-probe cache and the distributed spawn
// lock (§10.3). An empty Addr leaves both disabled.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// EventsConfig enables the AMQP lifecycle-event publisher (§10.4). An
// empty AMQPURL leaves it disabled.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string
}

func (c EventsConfig) Enabled() bool { return c.AMQPURL != "" }

// AuditConfig enables the write-only Postgres audit sink (§10.6). An
// empty Host leaves it disabled.
type AuditConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c AuditConfig) Enabled() bool { return c.Host != "" }

// TracingConfig enables Jaeger span emission (§10.7). An empty
// JaegerEndpoint leaves it disabled and a no-op tracer is installed.
type TracingConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

func (c TracingConfig) Enabled() bool { return c.JaegerEndpoint != "" }

// Load reads configuration from configPath, applying defaults for every
// optional field, and validates the required fields named in §6.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, apperror.Wrap(apperror.ConfigInvalid, "failed to read config", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, apperror.Wrap(apperror.ConfigInvalid, "failed to unmarshal config", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return apperror.New(apperror.ConfigInvalid, "server.port is required")
	}
	if cfg.SRS.APIURL == "" {
		return apperror.New(apperror.ConfigInvalid, "srs.api_url is required")
	}
	if cfg.SRS.PlaybackURLTemplate == "" {
		return apperror.New(apperror.ConfigInvalid, "srs.playback_url_template is required")
	}
	if !strings.Contains(cfg.SRS.PlaybackURLTemplate, "{stream_name}") {
		return apperror.New(apperror.ConfigInvalid, "srs.playback_url_template must contain the {stream_name} placeholder")
	}
	for i, s := range cfg.Streams {
		if s.Name == "" {
			return apperror.New(apperror.ConfigInvalid, fmt.Sprintf("streams[%d].name is required", i))
		}
		if s.URL == "" {
			return apperror.New(apperror.ConfigInvalid, fmt.Sprintf("streams[%d].url is required", i))
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("reaper.interval", "15s")
	viper.SetDefault("reaper.idle_threshold", "60s")

	viper.SetDefault("transcoder.bin_path", "ffmpeg")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("redis.db", 0)

	viper.SetDefault("events.exchange", "broker.sessions")

	viper.SetDefault("audit.sslmode", "disable")

	viper.SetDefault("tracing.service_name", "rtsp-broker")
}

// FindStream returns the configured descriptor with the given display
// name, if any.
func (c *Config) FindStream(name string) (models.StreamDescriptor, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return models.StreamDescriptor{}, false
}
