// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RateLimit is the number of lifecycle writes a subscriber may issue per
	// action and minute. Zero means the default; negative disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type AsaasConfig struct {
	APIKey       string        `yaml:"api_key"`
	Sandbox      bool          `yaml:"sandbox"`
	BaseURL      string        `yaml:"base_url"` // overrides the sandbox/production switch
	WalletID     string        `yaml:"wallet_id"`
	SplitPercent float64       `yaml:"split_percent"`
	WebhookToken string        `yaml:"webhook_token"`
	Timeout      time.Duration `yaml:"timeout"`
}

type PaymentConfig struct {
	Asaas         AsaasConfig `yaml:"asaas"`
	FirstDueInDay int         `yaml:"first_due_in_days"`
	Cycle         string      `yaml:"cycle"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	Batch      int           `yaml:"batch"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Payment    PaymentConfig    `yaml:"payment"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (an empty path skips it), applies a
// .env file and environment overrides, fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	// a missing .env is normal in containers
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !(errors.Is(err, os.ErrNotExist) && dev) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Payment.Asaas.APIKey, "ASAAS_API_KEY")
	setString(&cfg.Payment.Asaas.WebhookToken, "ASAAS_WEBHOOK_TOKEN")
	setString(&cfg.Payment.Asaas.WalletID, "ASAAS_WALLET_ID")
	if v, ok := os.LookupEnv("ASAAS_SANDBOX"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse ASAAS_SANDBOX: %w", err)
		}
		cfg.Payment.Asaas.Sandbox = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimit == 0 {
		cfg.HTTP.RateLimit = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, time.Hour)
	cfg.Redis.LockTTL = normalizeTTL(cfg.Redis.LockTTL, 30*time.Second)
	cfg.Payment.Asaas.Timeout = normalizeTTL(cfg.Payment.Asaas.Timeout, 10*time.Second)
	if cfg.Payment.FirstDueInDay <= 0 {
		cfg.Payment.FirstDueInDay = 3
	}
	if cfg.Payment.Cycle == "" {
		cfg.Payment.Cycle = "MONTHLY"
	}
	cfg.Reconciler.Interval = normalizeTTL(cfg.Reconciler.Interval, 5*time.Minute)
	cfg.Reconciler.StaleAfter = normalizeTTL(cfg.Reconciler.StaleAfter, 15*time.Minute)
	if cfg.Reconciler.Batch <= 0 {
		cfg.Reconciler.Batch = 100
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Payment.Asaas.APIKey == "" && !c.Runtime.Dev {
		return errors.New("payment.asaas.api_key is required outside dev mode")
	}
	if c.Payment.Asaas.SplitPercent < 0 || c.Payment.Asaas.SplitPercent > 100 {
		return errors.New("payment.asaas.split_percent must be within 0..100")
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
