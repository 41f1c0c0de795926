package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// NetworkConfig holds blockchain network settings
type NetworkConfig struct {
	Name           string `yaml:"name" json:"name"`
	ChainID        uint64 `yaml:"chain_id" json:"chainId"`
	RPCURL         string `yaml:"rpc_url" json:"rpcUrl"`
	BlockExplorer  string `yaml:"block_explorer" json:"blockExplorer"`
	CurrencySymbol string `yaml:"currency_symbol" json:"currencySymbol"`
}

// Networks are the built-in presets selectable with --network.
var Networks = map[string]NetworkConfig{
	"fluent-devnet": {
		Name:           "Fluent DevNet",
		ChainID:        20993,
		RPCURL:         "https://rpc.dev.gblend.xyz/",
		BlockExplorer:  "https://blockscout.dev.gblend.xyz/",
		CurrencySymbol: "ETH",
	},
	"fluent-preview": {
		Name:           "Fluent Developer Preview",
		ChainID:        20993,
		RPCURL:         "https://rpc.dev.thefluent.xyz/",
		BlockExplorer:  "https://blockscout.dev.thefluent.xyz/",
		CurrencySymbol: "FLT",
	},
	"local": {
		Name:           "Local Node",
		ChainID:        1337,
		RPCURL:         "http://127.0.0.1:8545",
		CurrencySymbol: "ETH",
	},
}

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrNotConfigured  = errors.New("not configured")
)

// Config is the full tool configuration
type Config struct {
	Network          string        `yaml:"network"`
	NetworkConfig    NetworkConfig `yaml:"network_config"`
	PrivateKey       string        `yaml:"private_key"`
	RustContract     string        `yaml:"rust_contract"`
	SolidityContract string        `yaml:"solidity_contract"`

	DatabasePath      string `yaml:"database_path"`
	AuditLogDir       string `yaml:"audit_log_dir"`
	LogLevel          string `yaml:"log_level"`
	EnableColoredLogs bool   `yaml:"enable_colored_logs"`

	MaxRetries    int    `yaml:"max_retries"`
	RetryDelayMs  int    `yaml:"retry_delay_ms"`
	CallTimeoutMs int    `yaml:"call_timeout_ms"`
	GasLimit      uint64 `yaml:"gas_limit"`

	APIAddr        string   `yaml:"api_addr"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	FrontendFiles  []string `yaml:"frontend_files"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Network:           "fluent-devnet",
		DatabasePath:      "./data/deployments.db",
		AuditLogDir:       "./logs",
		LogLevel:          "info",
		EnableColoredLogs: true,
		MaxRetries:        3,
		RetryDelayMs:      1000,
		CallTimeoutMs:     5000,
		GasLimit:          3_000_000,
		APIAddr:           ":8080",
		RateLimitRPS:      5,
		RateLimitBurst:    10,
	}
}

// Load reads an optional YAML file on top of the defaults, then applies
// environment variables. Call Resolve once command-line overrides are in.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Network = getEnv("BLENDED_NETWORK", c.Network)
	c.NetworkConfig.RPCURL = getEnv("RPC_URL", c.NetworkConfig.RPCURL)
	c.NetworkConfig.ChainID = uint64(getEnvInt("CHAIN_ID", int(c.NetworkConfig.ChainID)))
	c.PrivateKey = getEnv("PRIVATE_KEY", c.PrivateKey)
	c.RustContract = getEnv("RUST_CONTRACT_ADDRESS", c.RustContract)
	c.SolidityContract = getEnv("SOLIDITY_CONTRACT_ADDRESS", c.SolidityContract)
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.AuditLogDir = getEnv("AUDIT_LOG_DIR", c.AuditLogDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)
	c.RetryDelayMs = getEnvInt("RETRY_DELAY_MS", c.RetryDelayMs)
	c.CallTimeoutMs = getEnvInt("CALL_TIMEOUT_MS", c.CallTimeoutMs)
	c.EnableColoredLogs = getEnvBool("ENABLE_COLORED_LOGS", c.EnableColoredLogs)
	c.APIAddr = getEnv("API_ADDR", c.APIAddr)
}

// Resolve fills unset network fields from the selected preset and validates
// the result.
func (c *Config) Resolve() error {
	preset, ok := Networks[c.Network]
	if !ok && c.NetworkConfig.RPCURL == "" {
		return fmt.Errorf("%w: %q", ErrUnknownNetwork, c.Network)
	}

	n := &c.NetworkConfig
	if n.Name == "" {
		n.Name = preset.Name
		if n.Name == "" {
			n.Name = c.Network
		}
	}
	if n.ChainID == 0 {
		n.ChainID = preset.ChainID
	}
	if n.RPCURL == "" {
		n.RPCURL = preset.RPCURL
	}
	if n.BlockExplorer == "" {
		n.BlockExplorer = preset.BlockExplorer
	}
	if n.CurrencySymbol == "" {
		n.CurrencySymbol = preset.CurrencySymbol
	}

	return c.Validate()
}

// Validate checks the values that would otherwise fail deep inside an RPC
// call.
func (c *Config) Validate() error {
	u, err := url.Parse(c.NetworkConfig.RPCURL)
	if err != nil {
		return fmt.Errorf("invalid rpc url %q: %w", c.NetworkConfig.RPCURL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid rpc url %q: unsupported scheme", c.NetworkConfig.RPCURL)
	}

	for name, addr := range map[string]string{"rust contract": c.RustContract, "solidity contract": c.SolidityContract} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}

	if c.PrivateKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x")); err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryDelayMs < 0 || c.CallTimeoutMs < 0 {
		return errors.New("retry_delay_ms and call_timeout_ms must not be negative")
	}
	return nil
}

// RetryDelay is the base delay of the connectivity backoff.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// CallTimeout bounds a single contract read.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// RustAddress returns the configured Rust contract address.
func (c *Config) RustAddress() (common.Address, error) {
	return parseAddress("rust contract", c.RustContract)
}

// SolidityAddress returns the configured Solidity contract address.
func (c *Config) SolidityAddress() (common.Address, error) {
	return parseAddress("solidity contract", c.SolidityContract)
}

func parseAddress(name, addr string) (common.Address, error) {
	if addr == "" {
		return common.Address{}, fmt.Errorf("%s address %w", name, ErrNotConfigured)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, addr)
	}
	return common.HexToAddress(addr), nil
}

// ExplorerURL links an address on the network's block explorer.
func (n NetworkConfig) ExplorerURL(addr string) string {
	if n.BlockExplorer == "" {
		return ""
	}
	return strings.TrimRight(n.BlockExplorer, "/") + "/address/" + addr
}

// NewLogger builds the operator logger from the configured level and color
// setting.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   c.EnableColoredLogs,
		DisableColors: !c.EnableColoredLogs,
		FullTimestamp: true,
	})
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
