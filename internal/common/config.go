package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Export    ExportConfig    `mapstructure:"export"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // sqlite | postgres
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// OCRConfig holds the remote OCR webhook configuration
type OCRConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	ResultURL      string        `mapstructure:"result_url"`
	TestURL        string        `mapstructure:"test_url"`
	AuthType       string        `mapstructure:"auth_type"` // none | apiKey | bearer
	AuthValue      string        `mapstructure:"auth_value"`
	TimeoutMinutes int           `mapstructure:"timeout_minutes"`
	RetryCount     int           `mapstructure:"retry_count"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// ReferenceConfig holds the reference dataset (Fabric GraphQL) configuration
type ReferenceConfig struct {
	GraphQLEndpoint string        `mapstructure:"graphql_endpoint"`
	TenantID        string        `mapstructure:"tenant_id"`
	ClientID        string        `mapstructure:"client_id"`
	ClientSecret    string        `mapstructure:"client_secret"`
	Scope           string        `mapstructure:"scope"`
	PageSize        int           `mapstructure:"page_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// QueueConfig holds OCR queue pacing
type QueueConfig struct {
	ItemDelay time.Duration `mapstructure:"item_delay"`
	MaxPause  time.Duration `mapstructure:"max_pause"`
}

// ExportConfig holds output document settings
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:cdv.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		OCR: OCRConfig{
			AuthType:       "none",
			TimeoutMinutes: 5,
			RetryCount:     0,
			RetryDelay:     2 * time.Second,
			PollInterval:   3 * time.Second,
		},
		Reference: ReferenceConfig{
			Scope:    "https://api.fabric.microsoft.com/.default",
			PageSize: 1000,
			Timeout:  60 * time.Second,
		},
		Queue: QueueConfig{
			ItemDelay: 500 * time.Millisecond,
			MaxPause:  5 * time.Minute,
		},
		Export: ExportConfig{
			Dir: "./exports",
		},
	}
}

// LoadConfig reads defaults, an optional YAML file and CDV_* environment variables.
// An empty cfgFile looks for ./cdv.yaml and $HOME/.cdv/cdv.yaml.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("CDV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cdv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cdv")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, NewAppError("CONFIG_READ_FAILED", "cannot read configuration file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError("CONFIG_DECODE_FAILED", "cannot decode configuration", err)
	}
	return &cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conn_lifetime", d.Database.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", d.Database.MaxConnIdleTime)
	v.SetDefault("database.dial_timeout", d.Database.DialTimeout)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)

	v.SetDefault("ocr.webhook_url", d.OCR.WebhookURL)
	v.SetDefault("ocr.result_url", d.OCR.ResultURL)
	v.SetDefault("ocr.test_url", d.OCR.TestURL)
	v.SetDefault("ocr.auth_type", d.OCR.AuthType)
	v.SetDefault("ocr.auth_value", d.OCR.AuthValue)
	v.SetDefault("ocr.timeout_minutes", d.OCR.TimeoutMinutes)
	v.SetDefault("ocr.retry_count", d.OCR.RetryCount)
	v.SetDefault("ocr.retry_delay", d.OCR.RetryDelay)
	v.SetDefault("ocr.poll_interval", d.OCR.PollInterval)

	v.SetDefault("reference.graphql_endpoint", d.Reference.GraphQLEndpoint)
	v.SetDefault("reference.tenant_id", d.Reference.TenantID)
	v.SetDefault("reference.client_id", d.Reference.ClientID)
	v.SetDefault("reference.client_secret", d.Reference.ClientSecret)
	v.SetDefault("reference.scope", d.Reference.Scope)
	v.SetDefault("reference.page_size", d.Reference.PageSize)
	v.SetDefault("reference.timeout", d.Reference.Timeout)

	v.SetDefault("queue.item_delay", d.Queue.ItemDelay)
	v.SetDefault("queue.max_pause", d.Queue.MaxPause)

	v.SetDefault("export.dir", d.Export.Dir)
}

// Validate validates the loaded configuration.
// OCR and reference settings are checked where they are used, so a missing
// webhook URL only fails the OCR step.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported database.driver %q", c.Database.Driver), ErrConfig)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "database.dsn is required", ErrConfig)
	}
	switch c.OCR.AuthType {
	case "", "none", "apiKey", "bearer":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported ocr.auth_type %q", c.OCR.AuthType), ErrConfig)
	}
	if c.OCR.RetryCount < 0 {
		return NewAppError("CONFIG_ERROR", "ocr.retry_count must be >= 0", ErrConfig)
	}
	if c.Queue.MaxPause <= 0 {
		return NewAppError("CONFIG_ERROR", "queue.max_pause must be positive", ErrConfig)
	}
	return nil
}
