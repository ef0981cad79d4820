package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pelora/outreach/internal/transport"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Portal     PortalConfig     `yaml:"portal"`
	Transports TransportsConfig `yaml:"transports"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SnapshotConfig struct {
	Path string `yaml:"path"`
}

type PortalConfig struct {
	DefaultOrigin string `yaml:"default_origin"`
}

type TransportsConfig struct {
	SMTP transport.SMTPConfig `yaml:"smtp"`
	SMS  transport.SMSConfig  `yaml:"sms"`
}

type DispatchConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	Concurrency   int           `yaml:"concurrency"`
	BatchInterval time.Duration `yaml:"batch_interval"`

	// FatalErrorThreshold is the number of consecutive immediate send
	// failures from the start of a run after which dispatch aborts and
	// the campaign is marked failed.
	FatalErrorThreshold int `yaml:"fatal_error_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/outreach/app.db"
	}
	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = "/var/lib/outreach/snapshots.db"
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 10
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 10
	}
	if cfg.Dispatch.BatchInterval == 0 {
		cfg.Dispatch.BatchInterval = time.Second
	}
	if cfg.Dispatch.FatalErrorThreshold == 0 {
		cfg.Dispatch.FatalErrorThreshold = 5
	}
	if cfg.Transports.SMTP.Port == 0 {
		cfg.Transports.SMTP.Port = 587
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch.batch_size must be at least 1")
	}
	if cfg.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be at least 1")
	}
	if cfg.Transports.SMTP.Host == "" && cfg.Transports.SMS.BaseURL == "" {
		return fmt.Errorf("at least one transport must be configured (smtp or sms)")
	}
	if cfg.Transports.SMTP.Host != "" && cfg.Transports.SMTP.From == "" {
		return fmt.Errorf("transports.smtp.from is required when smtp is configured")
	}
	return nil
}
