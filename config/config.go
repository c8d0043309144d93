// Package config loads runtime settings for the card tools from an optional
// YAML file overlaid with NFTCARD_* environment variables.
//
// Nested keys map to variables by upper-casing and replacing dots with
// underscores: network.rpc_url is NFTCARD_NETWORK_RPC_URL.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"xdao.co/nftcard/locator"
	"xdao.co/nftcard/resolver"
	"xdao.co/nftcard/storage/casconfig"
)

const EnvPrefix = "NFTCARD"

type Config struct {
	Network   Network          `mapstructure:"network"`
	Ledger    Ledger           `mapstructure:"ledger"`
	Wallet    Wallet           `mapstructure:"wallet"`
	Storage   casconfig.Config `mapstructure:"storage"`
	Gateway   string           `mapstructure:"gateway"`
	Publisher Publisher        `mapstructure:"publisher"`
	Resolver  Resolver         `mapstructure:"resolver"`
	Cache     Cache            `mapstructure:"cache"`
	HTTP      HTTP             `mapstructure:"http"`
	Log       Log              `mapstructure:"log"`
}

type Network struct {
	Name     string `mapstructure:"name"`
	RPCURL   string `mapstructure:"rpc_url"`
	ChainID  int64  `mapstructure:"chain_id"`
	Contract string `mapstructure:"contract"`
	Explorer string `mapstructure:"explorer"`
}

type Ledger struct {
	// Backend is "evm" or "memory".
	Backend        string        `mapstructure:"backend"`
	PollMin        time.Duration `mapstructure:"poll_min"`
	PollMax        time.Duration `mapstructure:"poll_max"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

type Wallet struct {
	Dir     string `mapstructure:"dir"`
	Name    string `mapstructure:"name"`
	Role    string `mapstructure:"role"`
	KeyFile string `mapstructure:"key_file"`
	// Key is a hex private key, normally supplied as NFTCARD_WALLET_KEY.
	Key string `mapstructure:"key"`
}

type Publisher struct {
	ExternalURL string        `mapstructure:"external_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryMin    time.Duration `mapstructure:"retry_min"`
	RetryMax    time.Duration `mapstructure:"retry_max"`
}

type Resolver struct {
	Mode         string        `mapstructure:"mode"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type Cache struct {
	// Backend is "none", "memory" or "redis".
	Backend     string        `mapstructure:"backend"`
	LifeWindow  time.Duration `mapstructure:"life_window"`
	MaxSizeMB   int           `mapstructure:"max_size_mb"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPass   string        `mapstructure:"redis_password"`
	RedisDB     int           `mapstructure:"redis_db"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

type HTTP struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type Log struct {
	Level string `mapstructure:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.name", "sepolia")
	v.SetDefault("network.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("network.chain_id", 11155111)
	v.SetDefault("network.contract", "")
	v.SetDefault("network.explorer", "https://sepolia.etherscan.io")

	v.SetDefault("ledger.backend", "evm")
	v.SetDefault("ledger.poll_min", 500*time.Millisecond)
	v.SetDefault("ledger.poll_max", 10*time.Second)
	v.SetDefault("ledger.confirm_timeout", 5*time.Minute)

	v.SetDefault("wallet.dir", "")
	v.SetDefault("wallet.name", "")
	v.SetDefault("wallet.role", "")
	v.SetDefault("wallet.key_file", "")
	v.SetDefault("wallet.key", "")

	v.SetDefault("storage.write_policy", "first")
	v.SetDefault("gateway", locator.DefaultGatewayBase)

	v.SetDefault("publisher.external_url", "")
	v.SetDefault("publisher.timeout", 30*time.Second)
	v.SetDefault("publisher.max_attempts", 1)
	v.SetDefault("publisher.retry_min", 250*time.Millisecond)
	v.SetDefault("publisher.retry_max", 5*time.Second)

	v.SetDefault("resolver.mode", "permissive")
	v.SetDefault("resolver.timeout", resolver.DefaultTimeout)
	v.SetDefault("resolver.concurrency", resolver.DefaultConcurrency)
	v.SetDefault("resolver.max_body_bytes", 1<<20)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.life_window", time.Hour)
	v.SetDefault("cache.max_size_mb", 64)
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "nftcard:")
	v.SetDefault("cache.redis_ttl", 24*time.Hour)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 2*time.Minute)
	v.SetDefault("http.max_upload_bytes", 5<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// DefaultStorage is used when the file names no backends: a local Kubo node.
func DefaultStorage() casconfig.Config {
	return casconfig.Config{
		WritePolicy: "first",
		Backends: []casconfig.BackendConfig{
			{Name: "ipfs", Config: map[string]string{"endpoint": "http://127.0.0.1:5001"}},
		},
	}
}

// Load reads path (when non-empty) and the environment. A missing path is an
// error; an empty path means environment and defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if len(cfg.Storage.Backends) == 0 {
		policy := cfg.Storage.WritePolicy
		cfg.Storage = DefaultStorage()
		if policy != "" {
			cfg.Storage.WritePolicy = policy
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case "evm":
		if c.Network.Contract != "" && !common.IsHexAddress(c.Network.Contract) {
			errs = append(errs, fmt.Errorf("network.contract %q is not an address", c.Network.Contract))
		}
		if c.Network.ChainID <= 0 {
			errs = append(errs, errors.New("network.chain_id must be positive"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q: want evm or memory", c.Ledger.Backend))
	}
	if _, ok := resolver.ParseMode(c.Resolver.Mode); !ok {
		errs = append(errs, fmt.Errorf("resolver.mode %q: want permissive or strict", c.Resolver.Mode))
	}
	switch c.Cache.Backend {
	case "", "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want none, memory or redis", c.Cache.Backend))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ChainIDBig returns the configured chain id.
func (n Network) ChainIDBig() *big.Int { return big.NewInt(n.ChainID) }

// ContractAddress returns the parsed contract address, or the zero address
// when none is configured.
func (n Network) ContractAddress() common.Address {
	if n.Contract == "" {
		return common.Address{}
	}
	return common.HexToAddress(n.Contract)
}

// ResolverMode returns the parsed resolver mode; Validate has checked it.
func (r Resolver) ResolverMode() resolver.Mode {
	m, _ := resolver.ParseMode(r.Mode)
	return m
}
