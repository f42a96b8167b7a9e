package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Relay      RelayConfig      `yaml:"relay"`
	Swap       SwapConfig       `yaml:"swap"`
	Gas        GasConfig        `yaml:"gas"`
	CORS       CORSConfig       `yaml:"cors"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// "development" includes error details in responses; "production" hides them
	Env string `yaml:"env"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// RedisConfig redis configuration (optional, used by the redis replay store)
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig NATS message server configuration (optional, relay lifecycle events)
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// BlockchainConfig blockchain configuration
type BlockchainConfig struct {
	ChainID      int      `yaml:"chainId"`
	RPCEndpoints []string `yaml:"rpcEndpoints"`

	StakingContract   string `yaml:"stakingContract"`
	SwapRouter        string `yaml:"swapRouter"`
	YLSToken          string `yaml:"ylsToken"`
	WETHAddress       string `yaml:"wethAddress"`
	TradingStrategies string `yaml:"tradingStrategies"`

	// Relayer credential: either KMS or a direct private key
	KMSEnabled    bool   `yaml:"kmsEnabled"`
	KMSServiceURL string `yaml:"kmsServiceUrl"`
	KMSAuthToken  string `yaml:"kmsAuthToken"`
	KMSKeyAlias   string `yaml:"kmsKeyAlias"`
	PrivateKey    string `yaml:"privateKey"` // hex format, without 0x prefix

	GasLimit uint64 `yaml:"gasLimit"` // fallback when estimation fails
}

// RelayConfig relay pipeline configuration
type RelayConfig struct {
	// Replay store backend: "postgres" (default), "redis" or "memory"
	Store string `yaml:"store"`

	// How long consumed authorizations are kept before pruning. A record is
	// never pruned before its own deadline plus one hour.
	RetentionWindow time.Duration `yaml:"retentionWindow"`
	PruneInterval   time.Duration `yaml:"pruneInterval"`

	SubmitTimeout time.Duration `yaml:"submitTimeout"`
	MaxRetries    int           `yaml:"maxRetries"`
}

// SwapConfig swap quote configuration
type SwapConfig struct {
	// Static rate used when the on-chain router call fails (degraded quotes)
	FallbackRate string `yaml:"fallbackRate"`
}

// GasConfig gas estimate configuration
type GasConfig struct {
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig admin API access control configuration. Admin login is
// password + TOTP; successful logins receive a short-lived JWT.
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"`

	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totpSecret"`
	JWTSecret  string `yaml:"jwtSecret"`

	TokenTTL time.Duration `yaml:"tokenTtl"`
}

// IsDevelopment reports whether error details should be exposed in responses
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

var AppConfig *Config

// LoadConfig loads the configuration file and applies environment overrides
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	var config Config
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return err
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv overrides configuration from environment variables
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if port := os.Getenv("PORT"); port != "" && config.Server.Port == 0 {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		config.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			config.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.Redis.Password = redisPassword
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	if rpc := os.Getenv("OP_MAINNET_RPC"); rpc != "" {
		config.Blockchain.RPCEndpoints = []string{rpc}
	} else if rpcList := os.Getenv("RPC_ENDPOINTS"); rpcList != "" {
		config.Blockchain.RPCEndpoints = splitAndTrim(rpcList)
	}
	if addr := os.Getenv("STAKING_CONTRACT_ADDRESS"); addr != "" {
		config.Blockchain.StakingContract = addr
	}
	if addr := os.Getenv("SWAP_ROUTER_ADDRESS"); addr != "" {
		config.Blockchain.SwapRouter = addr
	}
	if addr := os.Getenv("YLS_TOKEN_ADDRESS"); addr != "" {
		config.Blockchain.YLSToken = addr
	}
	if addr := os.Getenv("WETH_ADDRESS"); addr != "" {
		config.Blockchain.WETHAddress = addr
	}
	if addr := os.Getenv("TRADING_STRATEGIES_ADDRESS"); addr != "" {
		config.Blockchain.TradingStrategies = addr
	}

	if kmsEnabled := os.Getenv("KMS_ENABLED"); kmsEnabled != "" {
		config.Blockchain.KMSEnabled = kmsEnabled == "true"
	}
	if kmsURL := os.Getenv("KMS_SERVICE_URL"); kmsURL != "" {
		config.Blockchain.KMSServiceURL = kmsURL
	}
	if kmsToken := os.Getenv("KMS_AUTH_TOKEN"); kmsToken != "" {
		config.Blockchain.KMSAuthToken = kmsToken
	}
	if kmsAlias := os.Getenv("KMS_KEY_ALIAS"); kmsAlias != "" {
		config.Blockchain.KMSKeyAlias = kmsAlias
	}
	if privateKey := os.Getenv("RELAYER_PRIVATE_KEY"); privateKey != "" {
		config.Blockchain.PrivateKey = strings.TrimPrefix(privateKey, "0x")
	}
	if gasLimit := os.Getenv("RELAY_GAS_LIMIT"); gasLimit != "" {
		if limit, err := strconv.ParseUint(gasLimit, 10, 64); err == nil {
			config.Blockchain.GasLimit = limit
		}
	}

	if store := os.Getenv("RELAY_STORE"); store != "" {
		config.Relay.Store = store
	}
	if retention := os.Getenv("RELAY_RETENTION_WINDOW"); retention != "" {
		if d, err := time.ParseDuration(retention); err == nil {
			config.Relay.RetentionWindow = d
		}
	}

	if rate := os.Getenv("SWAP_FALLBACK_RATE"); rate != "" {
		config.Swap.FallbackRate = rate
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitAndTrim(corsOrigins)
	}

	if env := os.Getenv("NODE_ENV"); env != "" {
		config.Server.Env = env
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if secret := os.Getenv("ADMIN_TOTP_SECRET"); secret != "" {
		config.Admin.TOTPSecret = secret
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
}

// applyDefaults fills in defaults for optional settings
func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 3001
	}
	if config.Blockchain.ChainID == 0 {
		config.Blockchain.ChainID = 10 // OP Mainnet
	}
	if config.Relay.Store == "" {
		config.Relay.Store = "postgres"
	}
	if config.Relay.RetentionWindow <= 0 {
		config.Relay.RetentionWindow = 168 * time.Hour
	}
	if config.Relay.PruneInterval <= 0 {
		config.Relay.PruneInterval = time.Hour
	}
	if config.Relay.SubmitTimeout <= 0 {
		config.Relay.SubmitTimeout = 10 * time.Second
	}
	if config.Relay.MaxRetries <= 0 {
		config.Relay.MaxRetries = 3
	}
	if config.Blockchain.GasLimit == 0 {
		config.Blockchain.GasLimit = 300000
	}
	if config.Swap.FallbackRate == "" {
		config.Swap.FallbackRate = "0.001"
	}
	if config.Gas.CacheTTL <= 0 {
		config.Gas.CacheTTL = 15 * time.Second
	}
	if config.NATS.ReconnectWait <= 0 {
		config.NATS.ReconnectWait = 2
	}
	if config.NATS.MaxReconnects == 0 {
		config.NATS.MaxReconnects = 10
	}
	if config.Server.Env == "" {
		config.Server.Env = "development"
	}
	if config.Admin.TokenTTL <= 0 {
		config.Admin.TokenTTL = time.Hour
	}
}

// validate checks that required settings are present
func validate(config *Config) error {
	if len(config.Blockchain.RPCEndpoints) == 0 {
		return fmt.Errorf("missing required configuration: blockchain.rpcEndpoints (OP_MAINNET_RPC)")
	}
	if config.Blockchain.StakingContract == "" {
		return fmt.Errorf("missing required configuration: blockchain.stakingContract (STAKING_CONTRACT_ADDRESS)")
	}
	if config.Blockchain.SwapRouter == "" {
		return fmt.Errorf("missing required configuration: blockchain.swapRouter (SWAP_ROUTER_ADDRESS)")
	}
	if config.Blockchain.YLSToken == "" {
		return fmt.Errorf("missing required configuration: blockchain.ylsToken (YLS_TOKEN_ADDRESS)")
	}
	if !config.Blockchain.KMSEnabled && config.Blockchain.PrivateKey == "" {
		return fmt.Errorf("missing relayer credential: set RELAYER_PRIVATE_KEY or enable KMS")
	}
	if config.Blockchain.KMSEnabled && config.Blockchain.KMSServiceURL == "" {
		return fmt.Errorf("KMS enabled but blockchain.kmsServiceUrl is empty")
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
