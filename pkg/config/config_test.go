package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func validConfig() *ServerConfig {
	cfg := NewDefaultServerConfig()
	cfg.Owner = testOwner
	return cfg
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr string
	}{
		{name: "defaults with owner", mutate: func(c *ServerConfig) {}},
		{name: "missing owner", mutate: func(c *ServerConfig) { c.Owner = "" }, wantErr: "owner"},
		{name: "bad owner", mutate: func(c *ServerConfig) { c.Owner = "f39fd6e51aad88f6f4ce6ab8827279cfffb92266" }, wantErr: "owner"},
		{name: "bad port", mutate: func(c *ServerConfig) { c.Port = 70000 }, wantErr: "port"},
		{name: "empty chain id", mutate: func(c *ServerConfig) { c.ChainID = "" }, wantErr: "chainId"},
		{name: "bad signer", mutate: func(c *ServerConfig) { c.Signers = []string{"0x12"} }, wantErr: "signers[0]"},
		{name: "empty asset", mutate: func(c *ServerConfig) { c.FoundryAssets = []string{"uatom", ""} }, wantErr: "foundryAssets[1]"},
		{name: "badger without path", mutate: func(c *ServerConfig) { c.Persistence.Type = persistence.TypeBadger }, wantErr: "persistence.dataPath"},
		{name: "badger with path", mutate: func(c *ServerConfig) {
			c.Persistence = PersistenceConfig{Type: persistence.TypeBadger, DataPath: "/tmp/x"}
		}},
		{name: "redis without address", mutate: func(c *ServerConfig) { c.Persistence.Type = persistence.TypeRedis }, wantErr: "persistence.redis.address"},
		{name: "redis bad db", mutate: func(c *ServerConfig) {
			c.Persistence = PersistenceConfig{Type: persistence.TypeRedis, Redis: &redis.RedisConfig{Address: "localhost:6379", DB: 16}}
		}, wantErr: "persistence.redis.db"},
		{name: "unknown persistence", mutate: func(c *ServerConfig) { c.Persistence.Type = "postgres" }, wantErr: "persistence.type"},
		{name: "negative rate", mutate: func(c *ServerConfig) { c.RateLimit = -1 }, wantErr: "rateLimit"},
		{name: "rate without burst", mutate: func(c *ServerConfig) { c.RateBurst = 0 }, wantErr: "rateBurst"},
		{name: "limiter disabled", mutate: func(c *ServerConfig) { c.RateLimit = 0; c.RateBurst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_ValidateNormalizesAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.Signers = []string{"0x035567DA27E42258C35B313095ACDEA4320A7465"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", cfg.Owner)
	assert.Equal(t, "0x035567da27e42258c35b313095acdea4320a7465", cfg.Signers[0])
}

func TestParseGenesisBalance(t *testing.T) {
	b, err := ParseGenesisBalance(testOwner + "=1000uatom")
	require.NoError(t, err)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", b.Address)
	assert.Equal(t, "uatom", b.Denom)
	assert.Equal(t, "1000", b.Amount.String())

	b, err = ParseGenesisBalance(testOwner + "=5ibc/ABC")
	require.NoError(t, err)
	assert.Equal(t, "ibc/ABC", b.Denom)

	for _, bad := range []string{"", testOwner, testOwner + "=uatom", testOwner + "=100", testOwner + "=-1uatom"} {
		_, err := ParseGenesisBalance(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multiswap.yaml")
	content := `
port: 9100
chainId: testnet-7
owner: ` + testOwner + `
signers:
  - "0x035567da27e42258c35b313095acdea4320a7465"
foundryAssets: [uatom, uusdc]
genesisBalances:
  - address: ` + testOwner + `
    denom: uatom
    amount: "340282366920938463463374607431768211455"
  - address: ` + testOwner + `
    denom: uusdc
    amount: 25
persistence:
  type: redis
  redis:
    address: localhost:6379
    keyPrefix: "testnet:"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "testnet-7", cfg.ChainID)
	assert.Equal(t, []string{"uatom", "uusdc"}, cfg.FoundryAssets)
	require.Len(t, cfg.GenesisBalances, 2)
	assert.Equal(t, "340282366920938463463374607431768211455", cfg.GenesisBalances[0].Amount.String())
	assert.Equal(t, "25", cfg.GenesisBalances[1].Amount.String())
	assert.Equal(t, persistence.TypeRedis, cfg.Persistence.Type)
	assert.Equal(t, "testnet:", cfg.Persistence.Redis.KeyPrefix)
	// Defaults survive for unset fields.
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("genesisBalances:\n  - amount: lots\n"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}
