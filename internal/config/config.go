package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Global   GlobalConfig   `yaml:"global"`
	Chain    ChainConfig    `yaml:"chain"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Feed     FeedConfig     `yaml:"feed"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Cache    CacheConfig    `yaml:"cache"`
	Gates    GatesConfig    `yaml:"gates"`
	Sinks    []Sink         `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath                 string   `yaml:"db_path"`
	PollingIntervalSeconds int      `yaml:"polling_interval_seconds"`
	ConfirmTimeout         Duration `yaml:"confirm_timeout"`
}

type ChainConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
	Recipient  string `yaml:"recipient"`
}

type FeedConfig struct {
	URL   string `yaml:"url"`
	Limit int    `yaml:"limit"`
}

type ExplorerConfig struct {
	BaseURL       string   `yaml:"base_url"`
	APIKey        string   `yaml:"api_key"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	ABIDirs       []string `yaml:"abi_dirs"`
}

type CacheConfig struct {
	Type     string   `yaml:"type"`
	RedisURL string   `yaml:"redis_url"`
	TTL      Duration `yaml:"ttl"`
}

// GatesConfig holds the evaluation thresholds. Prices are decimal strings or
// numbers in ETH; MaxGasPrice is in gwei.
type GatesConfig struct {
	MaxMintPrice       decimal.Decimal `yaml:"max_mint_price"`
	MinSampleCount     int             `yaml:"min_sample_count"`
	MaxGasPrice        decimal.Decimal `yaml:"max_gas_price"`
	MinMintRatio       decimal.Decimal `yaml:"min_mint_ratio"`
	DerivativeDenylist []string        `yaml:"derivative_denylist"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	NATSURL    string `yaml:"nats_url"`
	Stream     string `yaml:"stream"`
	Subject    string `yaml:"subject"`
	Rejections bool   `yaml:"rejections"`
}

// Duration is a time.Duration that unmarshals from strings like "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Defaults applied by ApplyDefaults.
const (
	DefaultDBPath          = "mintwatch.db"
	DefaultPollingInterval = 60
	DefaultConfirmTimeout  = 5 * time.Minute
	DefaultFeedURL         = "https://api.zora.co/graphql"
	DefaultFeedLimit       = 500
	DefaultExplorerURL     = "https://api.etherscan.io/api"
	DefaultExplorerRate    = 5
	DefaultCacheTTL        = 24 * time.Hour
	DefaultMinSampleCount  = 5
)

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Global.DBPath == "" {
		c.Global.DBPath = DefaultDBPath
	}
	if c.Global.PollingIntervalSeconds == 0 {
		c.Global.PollingIntervalSeconds = DefaultPollingInterval
	}
	if c.Global.ConfirmTimeout == 0 {
		c.Global.ConfirmTimeout = Duration(DefaultConfirmTimeout)
	}
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.Limit == 0 {
		c.Feed.Limit = DefaultFeedLimit
	}
	if c.Explorer.BaseURL == "" {
		c.Explorer.BaseURL = DefaultExplorerURL
	}
	if c.Explorer.RatePerSecond == 0 {
		c.Explorer.RatePerSecond = DefaultExplorerRate
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Gates.MinSampleCount == 0 {
		c.Gates.MinSampleCount = DefaultMinSampleCount
	}
}

// PollingInterval returns the scheduler period.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Global.PollingIntervalSeconds) * time.Second
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Global.PollingIntervalSeconds < 0 {
		return errors.New("global.polling_interval_seconds must be positive")
	}
	if c.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url is required")
	}
	if c.Wallet.PrivateKey == "" {
		return errors.New("wallet.private_key is required")
	}
	if c.Wallet.Recipient != "" && !common.IsHexAddress(c.Wallet.Recipient) {
		return fmt.Errorf("wallet.recipient is not an address: %s", c.Wallet.Recipient)
	}
	if c.Feed.Limit < 0 {
		return errors.New("feed.limit must be positive")
	}
	if c.Explorer.APIKey == "" {
		return errors.New("explorer.api_key is required")
	}
	if c.Explorer.RatePerSecond < 0 {
		return errors.New("explorer.rate_per_second must not be negative")
	}

	switch strings.ToLower(c.Cache.Type) {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return errors.New("cache.redis_url is required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	if err := c.Gates.Validate(); err != nil {
		return fmt.Errorf("gates: %w", err)
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return nil
}

func (g *GatesConfig) Validate() error {
	if g.MaxMintPrice.IsNegative() {
		return errors.New("max_mint_price must not be negative")
	}
	if g.MinSampleCount < 1 {
		return errors.New("min_sample_count must be at least 1")
	}
	if !g.MaxGasPrice.IsPositive() {
		return errors.New("max_gas_price is required")
	}
	if g.MinMintRatio.IsNegative() || g.MinMintRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("min_mint_ratio must be between 0 and 1")
	}
	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	case "nats":
		if s.Subject == "" {
			return errors.New("subject is required for nats sink")
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
