package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// Secret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	Secret string `yaml:"secret" envconfig:"WEBHOOK_SECRET"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// EndpointsConfig pins the Copperx API paths to one verified contract version.
type EndpointsConfig struct {
	RequestOTP       string `yaml:"request_otp"`
	Authenticate     string `yaml:"authenticate"`
	Profile          string `yaml:"profile"`
	KYCs             string `yaml:"kycs"`
	Wallets          string `yaml:"wallets"`
	Balances         string `yaml:"balances"`
	WalletBalance    string `yaml:"wallet_balance"`
	DefaultWallet    string `yaml:"default_wallet"`
	Payees           string `yaml:"payees"`
	SendEmail        string `yaml:"send_email"`
	SendWallet       string `yaml:"send_wallet"`
	Accounts         string `yaml:"accounts"`
	OfframpQuote     string `yaml:"offramp_quote"`
	OfframpTransfer  string `yaml:"offramp_transfer"`
	Transfers        string `yaml:"transfers"`
	SendBatch        string `yaml:"send_batch"`
	Points           string `yaml:"points"`
	NotificationAuth string `yaml:"notification_auth"`
}

// CopperxConfig describes the remote financial API contract.
type CopperxConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"COPPERX_API_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"COPPERX_TIMEOUT_SECONDS"`
	// ScaleDecimals is the exponent of the minor-unit factor (8 -> 10^8).
	ScaleDecimals int               `yaml:"scale_decimals" envconfig:"COPPERX_SCALE_DECIMALS"`
	Currency      string            `yaml:"currency"`
	PurposeCode   string            `yaml:"purpose_code"`
	SupportURL    string            `yaml:"support_url"`
	KYCURL        string            `yaml:"kyc_url"`
	HistoryLimit  int               `yaml:"history_limit"`
	Networks      map[string]string `yaml:"networks" ignored:"true"`
	Endpoints     EndpointsConfig   `yaml:"endpoints" ignored:"true"`
}

const (
	// SessionBackendMemory keeps sessions in process memory.
	SessionBackendMemory = "memory"
	// SessionBackendRedis keeps sessions in Redis.
	SessionBackendRedis = "redis"
	// SessionBackendPostgres keeps sessions in a Postgres table.
	SessionBackendPostgres = "postgres"
)

// SessionConfig selects the session store backend and its idle horizon.
type SessionConfig struct {
	Backend string        `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTL     time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
}

// RedisConfig holds connection settings for the Redis session backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// PusherConfig configures the deposit notification socket.
type PusherConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"PUSHER_ENABLED"`
	Key     string `yaml:"key" envconfig:"PUSHER_APP_KEY"`
	Cluster string `yaml:"cluster" envconfig:"PUSHER_APP_CLUSTER"`
	// Host overrides the cluster host, e.g. for a self-hosted socket server.
	Host string `yaml:"host" envconfig:"PUSHER_HOST"`
}

// HealthConfig configures the operational HTTP listener. Empty Listen disables it.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Copperx   CopperxConfig   `yaml:"copperx"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Pusher    PusherConfig    `yaml:"pusher"`
	Health    HealthConfig    `yaml:"health"`
}

// Load reads configuration from a YAML file, a sibling .env file and environment variables.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv populates missing environment variables from .env files in the working
// directory and next to the config file. Existing variables are never overwritten.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); dir != "." && dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, p := range candidates {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeCopperx(&cfg.Copperx); err != nil {
		return err
	}
	if err := normalizeSession(cfg); err != nil {
		return err
	}
	if cfg.Pusher.Enabled && strings.TrimSpace(cfg.Pusher.Key) == "" {
		return fmt.Errorf("pusher.key is required when pusher.enabled is true")
	}
	if cfg.Pusher.Enabled && cfg.Pusher.Cluster == "" && cfg.Pusher.Host == "" {
		return fmt.Errorf("pusher.cluster or pusher.host is required when pusher.enabled is true")
	}
	return nil
}

func normalizeCopperx(c *CopperxConfig) error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://income-api.copperx.io"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.ScaleDecimals == 0 {
		c.ScaleDecimals = 8
	}
	if c.ScaleDecimals < 1 || c.ScaleDecimals > 18 {
		return fmt.Errorf("copperx.scale_decimals must be within 1..18, got %d", c.ScaleDecimals)
	}
	if c.Currency == "" {
		c.Currency = "USDC"
	}
	if c.PurposeCode == "" {
		c.PurposeCode = "self"
	}
	if c.SupportURL == "" {
		c.SupportURL = "https://t.me/copperxcommunity/2183"
	}
	if c.KYCURL == "" {
		c.KYCURL = "https://copperx.io"
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if len(c.Networks) == 0 {
		c.Networks = map[string]string{
			"137":   "Polygon",
			"42161": "Arbitrum",
			"8453":  "Base",
		}
	}
	c.Endpoints = c.Endpoints.withDefaults()
	return nil
}

// DefaultEndpoints returns the pinned endpoint paths.
func DefaultEndpoints() EndpointsConfig { return EndpointsConfig{}.withDefaults() }

func (e EndpointsConfig) withDefaults() EndpointsConfig {
	def := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	def(&e.RequestOTP, "/api/auth/email-otp/request")
	def(&e.Authenticate, "/api/auth/email-otp/authenticate")
	def(&e.Profile, "/api/auth/me")
	def(&e.KYCs, "/api/kycs")
	def(&e.Wallets, "/api/wallets")
	def(&e.Balances, "/api/wallets/balances")
	def(&e.WalletBalance, "/api/wallets/balance")
	def(&e.DefaultWallet, "/api/wallets/default")
	def(&e.Payees, "/api/payees")
	def(&e.SendEmail, "/api/transfers/send")
	def(&e.SendWallet, "/api/transfers/wallet-withdraw")
	def(&e.Accounts, "/api/accounts")
	def(&e.OfframpQuote, "/api/quotes/offramp")
	def(&e.OfframpTransfer, "/api/transfers/offramp")
	def(&e.Transfers, "/api/transfers")
	def(&e.SendBatch, "/api/transfers/send-batch")
	def(&e.Points, "/api/points/total")
	def(&e.NotificationAuth, "/api/notifications/auth")
	return e
}

func normalizeSession(cfg *Config) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	if backend == "" {
		backend = SessionBackendMemory
	}
	switch backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when session.backend is 'redis'")
		}
		if cfg.Redis.KeyPrefix == "" {
			cfg.Redis.KeyPrefix = "copperx:session:"
		}
	case SessionBackendPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when session.backend is 'postgres'")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis, postgres", cfg.Session.Backend)
	}
	cfg.Session.Backend = backend

	if cfg.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must be >= 0")
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	return nil
}
