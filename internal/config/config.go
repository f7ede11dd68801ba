package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const MiB = 1024 * 1024

type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Uploads    UploadsConfig    `mapstructure:"uploads"`
	Validation ValidationConfig `mapstructure:"validation"`
	Events     EventsConfig     `mapstructure:"events"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	API        APIConfig        `mapstructure:"api"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout  int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
}

type UploadsConfig struct {
	Dir          string `mapstructure:"dir"`
	PublicPrefix string `mapstructure:"public_prefix"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes"`
}

type ValidationConfig struct {
	AllowedDomains        []string `mapstructure:"allowed_domains"`
	RequireWorkExperience bool     `mapstructure:"require_work_experience"`
	EnforceEducation      bool     `mapstructure:"enforce_education"`
}

type EventsConfig struct {
	// Driver is one of none, nats, kafka.
	Driver string `mapstructure:"driver"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type RetentionConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	Days            int  `mapstructure:"days"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("server.port", "3010")
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.idle_timeout_seconds", 120)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "ats")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.public_prefix", "/uploads")
	v.SetDefault("uploads.max_file_bytes", 5*MiB)

	v.SetDefault("validation.allowed_domains", []string{})
	v.SetDefault("validation.require_work_experience", false)
	v.SetDefault("validation.enforce_education", true)

	v.SetDefault("events.driver", "none")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "candidates.created")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "candidates.created")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.interval_minutes", 60)

	v.SetDefault("api.base_url", "http://localhost:3010")
}

func Load() (*Config, error) {
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("/configs")      // Kubernetes mount
	v.AddConfigPath("./configs")     // repo root
	v.AddConfigPath("../../configs") // IDE from cmd/server

	// Config file is optional, environment variables and defaults still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("env", "ENV")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("uploads.dir", "UPLOAD_DIR")
	v.BindEnv("api.base_url", "API_BASE_URL")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Uploads.Dir == "" {
		return fmt.Errorf("uploads.dir must not be empty")
	}
	if c.Uploads.MaxFileBytes <= 0 {
		return fmt.Errorf("uploads.max_file_bytes must be positive, got %d", c.Uploads.MaxFileBytes)
	}
	switch c.Events.Driver {
	case "", "none", "nats", "kafka":
	default:
		return fmt.Errorf("events.driver must be one of none, nats, kafka, got %q", c.Events.Driver)
	}
	if c.Retention.Enabled && c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive when retention is enabled")
	}
	return nil
}
