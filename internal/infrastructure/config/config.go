package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sessions  SessionConfig
	Phishing  PhishingConfig
	Wallet    WalletConfig
	Bridge    BridgeConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SessionConfig selects the origin session backend.
type SessionConfig struct {
	Backend  string `envconfig:"SESSION_BACKEND" default:"memory"` // memory, file, redis
	Dir      string `envconfig:"SESSION_DIR" default:"/tmp/dappbridge/sessions"`
	RedisURL string `envconfig:"SESSION_REDIS_URL" default:"redis://localhost:6379/0"`
	RedisKey string `envconfig:"SESSION_REDIS_KEY" default:"dappbridge:sessions"`
}

// PhishingConfig configures the phishing list detector.
type PhishingConfig struct {
	ListURL         string        `envconfig:"PHISHING_LIST_URL" default:"https://raw.githubusercontent.com/MetaMask/eth-phishing-detect/main/src/config.json"`
	RefreshInterval time.Duration `envconfig:"PHISHING_REFRESH_INTERVAL" default:"1h"`
	CachePath       string        `envconfig:"PHISHING_CACHE_PATH" default:"/tmp/dappbridge/phishing.json.zst"`
	Timeout         time.Duration `envconfig:"PHISHING_TIMEOUT" default:"10s"`
	Enabled         bool          `envconfig:"PHISHING_ENABLED" default:"true"`
}

// WalletConfig describes the wallet identity and its chain registry.
type WalletConfig struct {
	Name           string   `envconfig:"WALLET_NAME" default:"HAQQ Wallet"`
	Version        string   `envconfig:"WALLET_VERSION" default:"1.0.0"`
	ChainsFile     string   `envconfig:"CHAINS_FILE" default:""`
	DefaultChainID string   `envconfig:"DEFAULT_CHAIN_ID" default:"0x2be3"`
	Accounts       []string `envconfig:"WALLET_ACCOUNTS" default:""`
}

// BridgeConfig holds per-tab bridge behaviour.
type BridgeConfig struct {
	ProviderName        string        `envconfig:"PROVIDER_NAME" default:"metamask-provider"`
	PromptTimeout       time.Duration `envconfig:"PROMPT_TIMEOUT" default:"2m"`
	DynamicLinkHosts    []string      `envconfig:"DYNAMIC_LINK_HOSTS" default:""`
	WalletScheme        string        `envconfig:"WALLET_SCHEME" default:"haqq:"`
	ReloadOnChainChange bool          `envconfig:"RELOAD_ON_CHAIN_CHANGE" default:"true"`
	InboxSize           int           `envconfig:"TAB_INBOX_SIZE" default:"64"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown session backend %q", c.Sessions.Backend)
	}
	if c.Bridge.ProviderName == "" {
		return fmt.Errorf("provider name must not be empty")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sessions: SessionConfig{
			Backend:  "memory",
			Dir:      "/tmp/dappbridge/sessions",
			RedisURL: "redis://localhost:6379/0",
			RedisKey: "dappbridge:sessions",
		},
		Phishing: PhishingConfig{
			ListURL:         "https://raw.githubusercontent.com/MetaMask/eth-phishing-detect/main/src/config.json",
			RefreshInterval: time.Hour,
			CachePath:       "/tmp/dappbridge/phishing.json.zst",
			Timeout:         10 * time.Second,
			Enabled:         true,
		},
		Wallet: WalletConfig{
			Name:           "HAQQ Wallet",
			Version:        "1.0.0",
			DefaultChainID: "0x2be3",
		},
		Bridge: BridgeConfig{
			ProviderName:        "metamask-provider",
			PromptTimeout:       2 * time.Minute,
			WalletScheme:        "haqq:",
			ReloadOnChainChange: true,
			InboxSize:           64,
		},
	}
}
