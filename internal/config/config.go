package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres | memory
	DSN    string `yaml:"url"`
}

// RedisConfig configures the event stream consumer and the status-change
// channel. An empty URL disables both.
type RedisConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	Group         string        `yaml:"group"`
	Consumer      string        `yaml:"consumer"`
	StatusChannel string        `yaml:"status_channel"`
	ReclaimSpec   string        `yaml:"reclaim_spec"`
	MinIdle       time.Duration `yaml:"min_idle"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Webhooks struct {
		Secret string `yaml:"secret"`
	} `yaml:"webhooks"`
	Email    EmailConfig `yaml:"email"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`
	Notifications struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"notifications"`
}

// LoadConfig reads the file named by CONFIG_PATH (or DefaultPath), applies
// environment overrides and validates the result.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Webhooks.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "crm:lead-events"
	}
	if c.Redis.Group == "" {
		c.Redis.Group = "lead-status"
	}
	if c.Redis.Consumer == "" {
		host, _ := os.Hostname()
		c.Redis.Consumer = "status-" + host
	}
	if c.Redis.StatusChannel == "" {
		c.Redis.StatusChannel = "lead.status_changed"
	}
	if c.Redis.ReclaimSpec == "" {
		c.Redis.ReclaimSpec = "@every 1m"
	}
	if c.Redis.MinIdle == 0 {
		c.Redis.MinIdle = time.Minute
	}
}

// Validate fails fast on settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.url (or DATABASE_URL) is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret (or JWT_SECRET) is required"))
	}
	if c.Webhooks.Secret == "" {
		errs = append(errs, errors.New("webhooks.secret (or WEBHOOK_SECRET) is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Notifications.Enabled && c.Email.SMTPHost != "" && c.Email.FromEmail == "" {
		errs = append(errs, errors.New("email.from_email is required when smtp_host is set"))
	}
	return errors.Join(errs...)
}
