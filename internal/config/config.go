// Package config loads the fernd YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Spool    SpoolConfig    `yaml:"spool"`
	Sender   SenderConfig   `yaml:"sender"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	DKIM     DKIMConfig     `yaml:"dkim"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Wizard   WizardConfig   `yaml:"wizard"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SpoolConfig struct {
	Path string `yaml:"path"`
}

// SenderConfig describes the sending identity. CompanyName also resolves the
// company_name system variable at send time.
type SenderConfig struct {
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	CompanyName string `yaml:"company_name"`
}

// SMTPConfig is the smarthost the dispatcher relays through.
type SMTPConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	STARTTLS bool   `yaml:"starttls"`
}

type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

type DispatchConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Workers       int           `yaml:"workers"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type WizardConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
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
		cfg.Database.Path = "/var/lib/fern/app.db"
	}
	if cfg.Spool.Path == "" {
		cfg.Spool.Path = "/var/lib/fern/spool.db"
	}
	if cfg.Dispatch.PollInterval == 0 {
		cfg.Dispatch.PollInterval = 10 * time.Second
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.MaxRetries <= 0 {
		cfg.Dispatch.MaxRetries = 5
	}
	if cfg.Dispatch.RetryInterval == 0 {
		cfg.Dispatch.RetryInterval = 5 * time.Minute
	}
	if cfg.Wizard.SessionTTL == 0 {
		cfg.Wizard.SessionTTL = 2 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Sender.CompanyName == "" {
		cfg.Sender.CompanyName = cfg.Sender.FromName
	}
}

func validate(cfg *Config) error {
	if cfg.Dispatch.Enabled {
		if cfg.SMTP.Address == "" {
			return fmt.Errorf("smtp.address is required when dispatch is enabled")
		}
		if cfg.Sender.FromAddress == "" {
			return fmt.Errorf("sender.from_address is required when dispatch is enabled")
		}
	}
	if cfg.DKIM.Enabled {
		if cfg.DKIM.Domain == "" {
			return fmt.Errorf("dkim.domain is required when DKIM is enabled")
		}
		if cfg.DKIM.Selector == "" {
			return fmt.Errorf("dkim.selector is required when DKIM is enabled")
		}
		if cfg.DKIM.KeyFile == "" {
			return fmt.Errorf("dkim.key_file is required when DKIM is enabled")
		}
	}
	return nil
}
