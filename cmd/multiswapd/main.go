package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Layr-Labs/multiswap-go/pkg/config"
	"github.com/Layr-Labs/multiswap-go/pkg/logger"
	"github.com/Layr-Labs/multiswap-go/pkg/node"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/badger"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/memory"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/redis"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "multiswapd",
		Usage: "Multiswap bridge settlement node",
		Description: `Runs the multiswap settlement contract and its fiber router on a local host
and serves them over HTTP.

On an empty store the node deploys both contracts, registers the configured
signers and foundry assets, and funds the genesis balances.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file. Flags override file values",
				EnvVars: []string{config.EnvMultiswapConfig},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvMultiswapPort},
			},
			&cli.StringFlag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Value:   config.DefaultChainID,
				Usage:   "Chain id bound into withdrawal signatures",
				EnvVars: []string{config.EnvMultiswapChainID},
			},
			&cli.StringFlag{
				Name:    "owner",
				Usage:   "Owner address of the genesis contracts",
				EnvVars: []string{config.EnvMultiswapOwner},
			},
			&cli.StringSliceFlag{
				Name:    "signer",
				Usage:   "Genesis withdrawal signer address (repeatable)",
				EnvVars: []string{config.EnvMultiswapSigners},
			},
			&cli.StringSliceFlag{
				Name:    "foundry-asset",
				Usage:   "Genesis foundry asset denomination (repeatable)",
				EnvVars: []string{config.EnvMultiswapFoundryAssets},
			},
			&cli.StringSliceFlag{
				Name:    "genesis-balance",
				Usage:   "Genesis balance as <address>=<amount><denom> (repeatable)",
				EnvVars: []string{config.EnvMultiswapGenesisBalances},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   string(persistence.TypeMemory),
				Usage:   fmt.Sprintf("Persistence backend: %v", config.SupportedPersistenceTypes()),
				EnvVars: []string{config.EnvMultiswapPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvMultiswapDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvMultiswapRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvMultiswapRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvMultiswapRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvMultiswapRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   config.DefaultRateLimit,
				Usage:   "HTTP requests per second, 0 disables the limiter",
				EnvVars: []string{config.EnvMultiswapRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   config.DefaultRateBurst,
				Usage:   "HTTP request burst size",
				EnvVars: []string{config.EnvMultiswapRateBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvMultiswapVerbose},
			},
		},
		Action: runNode,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runNode(c *cli.Context) error {
	cfg, err := parseServerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Verbose})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	store, err := openStore(&cfg.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close store", "error", err)
		}
	}()

	n, err := node.NewNode(node.ConfigFromServerConfig(cfg, l), store)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	l.Sugar().Infow("Multiswap node running",
		"chain_id", cfg.ChainID,
		"port", cfg.Port,
		"persistence", cfg.Persistence.Type,
		"pool", n.PoolAddress(),
		"router", n.RouterAddress())
	l.Sugar().Infow("Available endpoints",
		"execute", "POST /execute",
		"query", "POST /query",
		"balance", "GET /balance",
		"nonce", "GET /nonce",
		"contracts", "GET /contracts",
		"health", "GET /health",
		"metrics", "GET /metrics")

	<-ctx.Done()
	l.Sugar().Info("Shutting down")
	return n.Stop()
}

// parseServerConfig starts from the config file, if any, and applies every
// flag that was set explicitly or has no file value to override.
func parseServerConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.NewDefaultServerConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fromFile := c.String("config") != ""
	use := func(name string) bool { return c.IsSet(name) || !fromFile }

	if use("port") {
		cfg.Port = c.Int("port")
	}
	if use("chain-id") {
		cfg.ChainID = c.String("chain-id")
	}
	if c.IsSet("owner") {
		cfg.Owner = c.String("owner")
	}
	if c.IsSet("signer") {
		cfg.Signers = c.StringSlice("signer")
	}
	if c.IsSet("foundry-asset") {
		cfg.FoundryAssets = c.StringSlice("foundry-asset")
	}
	if c.IsSet("genesis-balance") {
		cfg.GenesisBalances = nil
		for _, raw := range c.StringSlice("genesis-balance") {
			b, err := config.ParseGenesisBalance(raw)
			if err != nil {
				return nil, err
			}
			cfg.GenesisBalances = append(cfg.GenesisBalances, b)
		}
	}
	if use("persistence-type") {
		cfg.Persistence.Type = persistence.Type(c.String("persistence-type"))
	}
	if c.IsSet("data-path") {
		cfg.Persistence.DataPath = c.String("data-path")
	}
	if c.IsSet("redis-address") {
		if cfg.Persistence.Redis == nil {
			cfg.Persistence.Redis = &redis.RedisConfig{}
		}
		cfg.Persistence.Redis.Address = c.String("redis-address")
	}
	if cfg.Persistence.Redis != nil {
		if c.IsSet("redis-password") {
			cfg.Persistence.Redis.Password = c.String("redis-password")
		}
		if c.IsSet("redis-db") {
			cfg.Persistence.Redis.DB = c.Int("redis-db")
		}
		if c.IsSet("redis-key-prefix") {
			cfg.Persistence.Redis.KeyPrefix = c.String("redis-key-prefix")
		}
	}
	if use("rate-limit") {
		cfg.RateLimit = c.Float64("rate-limit")
	}
	if use("rate-burst") {
		cfg.RateBurst = c.Int("rate-burst")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	return cfg, nil
}

func openStore(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.Store, error) {
	var (
		store persistence.Store
		err   error
	)
	switch cfg.Type {
	case persistence.TypeMemory:
		store = memory.NewMemoryPersistenceWithWarning()
	case persistence.TypeBadger:
		store, err = badger.NewBadgerPersistence(cfg.DataPath, l)
	case persistence.TypeRedis:
		store, err = redis.NewRedisPersistence(cfg.Redis, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("store health check failed: %w", err)
	}
	l.Sugar().Infow("Opened store", "type", cfg.Type)
	return store, nil
}
