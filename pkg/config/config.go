package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/redis"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for multiswapd configuration
const (
	EnvMultiswapConfig          = "MULTISWAP_CONFIG"
	EnvMultiswapPort            = "MULTISWAP_PORT"
	EnvMultiswapChainID         = "MULTISWAP_CHAIN_ID"
	EnvMultiswapOwner           = "MULTISWAP_OWNER"
	EnvMultiswapSigners         = "MULTISWAP_SIGNERS"
	EnvMultiswapFoundryAssets   = "MULTISWAP_FOUNDRY_ASSETS"
	EnvMultiswapGenesisBalances = "MULTISWAP_GENESIS_BALANCES"
	EnvMultiswapPersistenceType = "MULTISWAP_PERSISTENCE_TYPE"
	EnvMultiswapDataPath        = "MULTISWAP_DATA_PATH"
	EnvMultiswapRedisAddress    = "MULTISWAP_REDIS_ADDRESS"
	EnvMultiswapRedisPassword   = "MULTISWAP_REDIS_PASSWORD"
	EnvMultiswapRedisDB         = "MULTISWAP_REDIS_DB"
	EnvMultiswapRedisKeyPrefix  = "MULTISWAP_REDIS_KEY_PREFIX"
	EnvMultiswapRateLimit       = "MULTISWAP_RATE_LIMIT"
	EnvMultiswapRateBurst       = "MULTISWAP_RATE_BURST"
	EnvMultiswapVerbose         = "MULTISWAP_VERBOSE"

	EnvSignerPrivateKey = "MULTISWAP_SIGNER_PRIVATE_KEY"
)

// Defaults applied by NewDefaultServerConfig.
const (
	DefaultPort      = 8000
	DefaultChainID   = "multiswap-1"
	DefaultRateLimit = 50.0
	DefaultRateBurst = 100
)

// GenesisBalance funds an account when the node starts on an empty store.
type GenesisBalance struct {
	Address string        `json:"address" yaml:"address"`
	Denom   string        `json:"denom" yaml:"denom"`
	Amount  types.Uint128 `json:"amount" yaml:"-"`
}

// UnmarshalYAML accepts the amount as a decimal string or integer.
func (g *GenesisBalance) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Address string `yaml:"address"`
		Denom   string `yaml:"denom"`
		Amount  string `yaml:"amount"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	amount, err := types.ParseUint128(raw.Amount)
	if err != nil {
		return fmt.Errorf("genesis balance for %s: %w", raw.Address, err)
	}
	*g = GenesisBalance{Address: raw.Address, Denom: raw.Denom, Amount: amount}
	return nil
}

// ParseGenesisBalance parses "<address>=<amount><denom>", e.g.
// "0xabc...=1000uatom".
func ParseGenesisBalance(s string) (GenesisBalance, error) {
	addr, coin, ok := strings.Cut(s, "=")
	if !ok {
		return GenesisBalance{}, fmt.Errorf("genesis balance %q must be <address>=<amount><denom>", s)
	}
	i := 0
	for i < len(coin) && coin[i] >= '0' && coin[i] <= '9' {
		i++
	}
	if i == 0 || i == len(coin) {
		return GenesisBalance{}, fmt.Errorf("genesis balance %q must be <address>=<amount><denom>", s)
	}
	amount, err := types.ParseUint128(coin[:i])
	if err != nil {
		return GenesisBalance{}, fmt.Errorf("genesis balance %q: %w", s, err)
	}
	return GenesisBalance{Address: strings.ToLower(addr), Denom: coin[i:], Amount: amount}, nil
}

type PersistenceConfig struct {
	Type     persistence.Type   `json:"type" yaml:"type"`
	DataPath string             `json:"dataPath" yaml:"dataPath"`
	Redis    *redis.RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// ServerConfig represents the complete configuration for a multiswap node
type ServerConfig struct {
	Port    int    `json:"port" yaml:"port"`
	ChainID string `json:"chainId" yaml:"chainId"`

	// Genesis settings, applied only when the store holds no contracts
	Owner           string           `json:"owner" yaml:"owner"`
	Signers         []string         `json:"signers" yaml:"signers"`
	FoundryAssets   []string         `json:"foundryAssets" yaml:"foundryAssets"`
	GenesisBalances []GenesisBalance `json:"genesisBalances" yaml:"genesisBalances"`

	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`

	// Requests per second and burst for the HTTP limiter. Zero disables it.
	RateLimit float64 `json:"rateLimit" yaml:"rateLimit"`
	RateBurst int     `json:"rateBurst" yaml:"rateBurst"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    DefaultPort,
		ChainID: DefaultChainID,
		Persistence: PersistenceConfig{
			Type: persistence.TypeMemory,
		},
		RateLimit: DefaultRateLimit,
		RateBurst: DefaultRateBurst,
	}
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := NewDefaultServerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the server configuration and normalizes addresses to
// lower case.
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}
	if c.ChainID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("chainId"), "chainId is required"))
	}

	if c.Owner == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("owner"), "owner is required"))
	} else if !isAddress(c.Owner) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("owner"), c.Owner, "must be a 0x-prefixed hex address"))
	}
	c.Owner = strings.ToLower(c.Owner)

	for i, s := range c.Signers {
		if !isAddress(s) {
			allErrors = append(allErrors, field.Invalid(field.NewPath("signers").Index(i), s, "must be a 0x-prefixed hex address"))
		}
		c.Signers[i] = strings.ToLower(s)
	}
	for i, token := range c.FoundryAssets {
		if token == "" || strings.IndexByte(token, 0) >= 0 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("foundryAssets").Index(i), token, "must be a non-empty denomination"))
		}
	}
	for i, b := range c.GenesisBalances {
		path := field.NewPath("genesisBalances").Index(i)
		if !isAddress(b.Address) {
			allErrors = append(allErrors, field.Invalid(path.Child("address"), b.Address, "must be a 0x-prefixed hex address"))
		}
		if b.Denom == "" {
			allErrors = append(allErrors, field.Required(path.Child("denom"), "denom is required"))
		}
		if b.Amount.IsZero() {
			allErrors = append(allErrors, field.Invalid(path.Child("amount"), b.Amount.String(), "must be positive"))
		}
		c.GenesisBalances[i].Address = strings.ToLower(b.Address)
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rateLimit is set"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (p *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch p.Type {
	case persistence.TypeMemory:
	case persistence.TypeBadger:
		if p.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case persistence.TypeRedis:
		if p.Redis == nil || p.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "redis address is required for redis persistence"))
		} else if p.Redis.DB < 0 || p.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), p.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), p.Type, SupportedPersistenceTypes()))
	}
	return allErrors
}

// SupportedPersistenceTypes returns the accepted persistence types as strings for CLI help
func SupportedPersistenceTypes() []string {
	var out []string
	for _, t := range persistence.SupportedTypes() {
		out = append(out, string(t))
	}
	return out
}

func isAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}
