package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Sheets struct {
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	SMTP struct {
		Server       string            `yaml:"server"`
		Port         int               `yaml:"port"`
		Login        string            `yaml:"login"`
		Password     string            `yaml:"password"`
		BranchEmails map[string]string `yaml:"branch_emails"`
		DefaultEmail string            `yaml:"default_email"`
	} `yaml:"smtp"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		SlotCapacity         int    `yaml:"slot_capacity"`
		OpenHour             int    `yaml:"open_hour"`
		CloseHour            int    `yaml:"close_hour"`
		SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
		CacheRefreshSeconds  int    `yaml:"cache_refresh_seconds"`
		CacheStalenessSecs   int    `yaml:"cache_staleness_seconds"`
		Timezone             string `yaml:"timezone"`
	} `yaml:"booking"`

	Report struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"report"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/scheduler.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	// Hardcoded business rules from the branch owners; config only overrides.
	if cfg.Booking.SlotCapacity <= 0 {
		cfg.Booking.SlotCapacity = 2
	}
	if cfg.Booking.OpenHour <= 0 {
		cfg.Booking.OpenHour = 12
	}
	if cfg.Booking.CloseHour <= 0 {
		cfg.Booking.CloseHour = 19
	}
	if cfg.Booking.SweepIntervalMinutes <= 0 {
		cfg.Booking.SweepIntervalMinutes = 2
	}
	if cfg.Booking.CacheRefreshSeconds <= 0 {
		cfg.Booking.CacheRefreshSeconds = 30
	}
	if cfg.Booking.CacheStalenessSecs <= 0 {
		cfg.Booking.CacheStalenessSecs = 60
	}
	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "Europe/Moscow"
	}
	if cfg.Sheets.SheetName == "" {
		cfg.Sheets.SheetName = "2025"
	}

	return &cfg, nil
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Booking.SweepIntervalMinutes) * time.Minute
}

func (c *Config) CacheRefresh() time.Duration {
	return time.Duration(c.Booking.CacheRefreshSeconds) * time.Second
}

func (c *Config) CacheStaleness() time.Duration {
	return time.Duration(c.Booking.CacheStalenessSecs) * time.Second
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Booking.Timezone)
}
