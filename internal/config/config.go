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
		Dir           string `yaml:"dir"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		NameTTLMinutes int    `yaml:"name_ttl_minutes"`
	} `yaml:"redis"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		HoldMinutes               int `yaml:"hold_minutes"`
		SweepIntervalSeconds      int `yaml:"sweep_interval_seconds"`
		ClientCancelLockHours     int `yaml:"client_cancel_lock_hours"`
		ClientRescheduleLockHours int `yaml:"client_reschedule_lock_hours"`
		MaxAdvanceDays            int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	Slots struct {
		StepMinutes        int    `yaml:"step_minutes"`
		SameDayLeadMinutes int    `yaml:"same_day_lead_minutes"`
		Timezone           string `yaml:"timezone"`
	} `yaml:"slots"`

	Notify struct {
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		QueueSize         int     `yaml:"queue_size"`
	} `yaml:"notify"`

	Reminders struct {
		Enabled              bool `yaml:"enabled"`
		LeadHours            int  `yaml:"lead_hours"`
		SweepIntervalMinutes int  `yaml:"sweep_interval_minutes"`
	} `yaml:"reminders"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
		ExportOnStart bool   `yaml:"export_on_start"`
	} `yaml:"audit"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"sheets"`
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
		cfg.Database.Path = "data/zapisnik.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if cfg.Audit.Enabled && cfg.Audit.Dir != "" {
		if err = os.MkdirAll(cfg.Audit.Dir, 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) HoldTTL() time.Duration {
	if c.Booking.HoldMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Booking.HoldMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Booking.SweepIntervalSeconds) * time.Second
}

func (c *Config) ClientCancelLock() time.Duration {
	if c.Booking.ClientCancelLockHours <= 0 {
		return 3 * time.Hour
	}
	return time.Duration(c.Booking.ClientCancelLockHours) * time.Hour
}

func (c *Config) ClientRescheduleLock() time.Duration {
	if c.Booking.ClientRescheduleLockHours <= 0 {
		return 3 * time.Hour
	}
	return time.Duration(c.Booking.ClientRescheduleLockHours) * time.Hour
}

func (c *Config) MaxAdvanceDays() int {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 365
	}
	return c.Booking.MaxAdvanceDays
}

func (c *Config) SlotStep() time.Duration {
	if c.Slots.StepMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Slots.StepMinutes) * time.Minute
}

func (c *Config) SameDayLead() time.Duration {
	if c.Slots.SameDayLeadMinutes < 0 {
		return 0
	}
	return time.Duration(c.Slots.SameDayLeadMinutes) * time.Minute
}

// Location resolves the salon timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.Slots.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Slots.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) NameCacheTTL() time.Duration {
	if c.Redis.NameTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Redis.NameTTLMinutes) * time.Minute
}

func (c *Config) ReminderLead() time.Duration {
	if c.Reminders.LeadHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Reminders.LeadHours) * time.Hour
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.SweepIntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Reminders.SweepIntervalMinutes) * time.Minute
}
