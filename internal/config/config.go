package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// PublicBaseURL overrides scheme://host when building payment resources
	// behind a proxy.
	PublicBaseURL string `yaml:"public_base_url"`
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
}

type AssetOverride struct {
	ChainID  int64  `yaml:"chain_id"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
}

type X402Config struct {
	FacilitatorURL   string                   `yaml:"facilitator_url"`
	FacilitatorToken string                   `yaml:"facilitator_token"`
	Network          string                   `yaml:"network"`
	PayTo            string                   `yaml:"pay_to"`
	Assets           map[string]AssetOverride `yaml:"assets"`
}

type PayoutConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	PrivateKey     string        `yaml:"private_key"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	GasLimit       uint64        `yaml:"gas_limit"`
	// DryRun swaps the on-chain signer for one that fakes successful transfers.
	DryRun bool `yaml:"dry_run"`
}

type SchedulerConfig struct {
	ExpiryCheckCron    string        `yaml:"expiry_check_cron"`
	BillingDueCron     string        `yaml:"billing_due_cron"`
	ReconcileCron      string        `yaml:"reconcile_cron"`
	ExpiringWithinDays int           `yaml:"expiring_within_days"`
	StaleAfter         time.Duration `yaml:"stale_after"`
}

type WebhookConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RateLimitConfig struct {
	PayRoutePerMinute int `yaml:"pay_route_per_minute"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	X402      X402Config      `yaml:"x402"`
	Payout    PayoutConfig    `yaml:"payout"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev flags and loads the file they point to.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads the YAML file at path, overlays .env and environment variables,
// applies defaults and validates the result.
func Load(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployments
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	envStr(&cfg.Database.URL, "DATABASE_URL")
	envStr(&cfg.Redis.URL, "REDIS_URL")
	envStr(&cfg.X402.FacilitatorURL, "FACILITATOR_URL")
	envStr(&cfg.X402.FacilitatorToken, "FACILITATOR_TOKEN")
	envStr(&cfg.X402.PayTo, "PAY_TO_ADDRESS")
	envStr(&cfg.X402.Network, "X402_NETWORK")
	envStr(&cfg.Payout.PrivateKey, "PAYOUT_PRIVATE_KEY")
	envStr(&cfg.Payout.RPCURL, "RPC_URL")
	envStr(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
}

func envStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		// settlement may take up to maxTimeoutSeconds
		cfg.HTTP.RequestTimeout = 90 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.X402.Network == "" {
		cfg.X402.Network = "base-sepolia"
	}
	if cfg.Payout.ReceiptTimeout <= 0 {
		cfg.Payout.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.Payout.PollInterval <= 0 {
		cfg.Payout.PollInterval = 2 * time.Second
	}
	if cfg.Scheduler.ExpiryCheckCron == "" {
		cfg.Scheduler.ExpiryCheckCron = "@every 1h"
	}
	if cfg.Scheduler.BillingDueCron == "" {
		cfg.Scheduler.BillingDueCron = "0 * * * *"
	}
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "*/10 * * * *"
	}
	if cfg.Scheduler.ExpiringWithinDays <= 0 {
		cfg.Scheduler.ExpiringWithinDays = 3
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 15 * time.Minute
	}
	if cfg.Webhook.Workers <= 0 {
		cfg.Webhook.Workers = 4
	}
	if cfg.Webhook.QueueSize <= 0 {
		cfg.Webhook.QueueSize = 256
	}
	if cfg.Webhook.Timeout <= 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Webhook.UserAgent == "" {
		cfg.Webhook.UserAgent = "x402-subscriptions-webhook/1.0"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.RateLimit.PayRoutePerMinute <= 0 {
		cfg.RateLimit.PayRoutePerMinute = 60
	}
}

// Validate performs the minimal checks needed to boot.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.X402.FacilitatorURL == "" {
		return errors.New("x402.facilitator_url is required")
	}
	if !common.IsHexAddress(c.X402.PayTo) {
		return fmt.Errorf("x402.pay_to must be a hex address, got %q", c.X402.PayTo)
	}
	if !c.Payout.DryRun && (c.Payout.RPCURL == "" || c.Payout.PrivateKey == "") {
		return errors.New("payout.rpc_url and payout.private_key are required unless payout.dry_run is set")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
