package node

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/config"
	"github.com/Layr-Labs/multiswap-go/pkg/fiberrouter"
	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/logger"
	"github.com/Layr-Labs/multiswap-go/pkg/metrics"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"go.uber.org/zap"
)

// Code ids and instance labels of the contracts deployed at genesis.
const (
	CodeMultiswap   = "multiswap"
	CodeFiberRouter = "fiberrouter"

	LabelPool   = "multiswap"
	LabelRouter = "fiberrouter"
)

// Config holds node configuration
type Config struct {
	Port    int
	ChainID string

	// Genesis
	Owner           string
	Signers         []string
	FoundryAssets   []string
	GenesisBalances []config.GenesisBalance

	RateLimit float64
	RateBurst int

	Logger *zap.Logger // Optional logger, will create default if nil
}

// ConfigFromServerConfig maps validated server configuration onto a node Config.
func ConfigFromServerConfig(c *config.ServerConfig, l *zap.Logger) Config {
	return Config{
		Port:            c.Port,
		ChainID:         c.ChainID,
		Owner:           c.Owner,
		Signers:         c.Signers,
		FoundryAssets:   c.FoundryAssets,
		GenesisBalances: c.GenesisBalances,
		RateLimit:       c.RateLimit,
		RateBurst:       c.RateBurst,
		Logger:          l,
	}
}

// Node runs the settlement contracts on a host and serves them over HTTP.
type Node struct {
	cfg     Config
	store   persistence.Store
	host    *host.Host
	metrics *metrics.Metrics
	server  *Server
	logger  *zap.Logger

	poolAddress   string
	routerAddress string
}

// NewNode creates a node over store. The store is owned by the caller.
func NewNode(cfg Config, store persistence.Store) (*Node, error) {
	nodeLogger := cfg.Logger
	if nodeLogger == nil {
		var err error
		nodeLogger, err = logger.NewLogger(&logger.LoggerConfig{Debug: false})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	h, err := host.NewHost(store, &host.Config{ChainID: cfg.ChainID}, nodeLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}
	h.RegisterCode(CodeMultiswap, multiswap.New(sigverify.Secp256k1{}))
	h.RegisterCode(CodeFiberRouter, fiberrouter.Router{})

	n := &Node{
		cfg:     cfg,
		store:   store,
		host:    h,
		metrics: metrics.New(),
		logger:  nodeLogger,
	}
	n.server = NewServer(n, cfg.Port)
	return n, nil
}

// Bootstrap deploys the pool and router contracts on an empty store and
// applies the genesis settings in a single commit. On a store that already
// holds them it only loads their addresses.
func (n *Node) Bootstrap(ctx context.Context) error {
	existing, err := n.host.FindInstance(LabelPool)
	if err != nil {
		return fmt.Errorf("failed to look up pool: %w", err)
	}
	if existing != nil {
		router, err := n.host.FindInstance(LabelRouter)
		if err != nil {
			return fmt.Errorf("failed to look up router: %w", err)
		}
		if router == nil {
			return fmt.Errorf("store has a pool but no router")
		}
		n.poolAddress, n.routerAddress = existing.Address, router.Address
		n.logger.Sugar().Infow("Loaded existing deployment", "pool", n.poolAddress, "router", n.routerAddress)
		return nil
	}

	owner := strings.ToLower(n.cfg.Owner)
	if owner == "" {
		return fmt.Errorf("owner is required to bootstrap an empty store")
	}

	var pool, router string
	err = n.host.Batch(ctx, func(b *host.Batch) error {
		for _, g := range n.cfg.GenesisBalances {
			if err := b.Mint(g.Address, []types.Coin{{Denom: g.Denom, Amount: g.Amount}}); err != nil {
				return fmt.Errorf("failed to mint genesis balance: %w", err)
			}
		}

		res, err := b.Instantiate(CodeMultiswap, owner, LabelPool, nil, host.MustJSON(multiswap.InstantiateMsg{Owner: owner}))
		if err != nil {
			return fmt.Errorf("failed to instantiate pool: %w", err)
		}
		pool = res.Contract

		for _, token := range n.cfg.FoundryAssets {
			msg := multiswap.ExecuteMsg{AddFoundryAsset: &multiswap.FoundryAssetMsg{Token: token}}
			if _, err := b.Execute(pool, owner, nil, host.MustJSON(msg)); err != nil {
				return fmt.Errorf("failed to add foundry asset %s: %w", token, err)
			}
		}
		for _, s := range n.cfg.Signers {
			msg := multiswap.ExecuteMsg{AddSigner: &multiswap.SignerMsg{Signer: s}}
			if _, err := b.Execute(pool, owner, nil, host.MustJSON(msg)); err != nil {
				return fmt.Errorf("failed to add signer %s: %w", s, err)
			}
		}

		res, err = b.Instantiate(CodeFiberRouter, owner, LabelRouter, nil,
			host.MustJSON(fiberrouter.InstantiateMsg{Owner: owner, Pool: pool}))
		if err != nil {
			return fmt.Errorf("failed to instantiate router: %w", err)
		}
		router = res.Contract
		return nil
	})
	if err != nil {
		return err
	}
	n.poolAddress, n.routerAddress = pool, router

	n.logger.Sugar().Infow("Bootstrapped genesis deployment",
		"pool", n.poolAddress,
		"router", n.routerAddress,
		"owner", owner,
		"signers", len(n.cfg.Signers),
		"foundry_assets", len(n.cfg.FoundryAssets),
		"genesis_balances", len(n.cfg.GenesisBalances),
	)
	return nil
}

// Start checks the store, bootstraps and starts the HTTP server.
func (n *Node) Start(ctx context.Context) error {
	if err := n.store.HealthCheck(); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	if err := n.Bootstrap(ctx); err != nil {
		return err
	}
	if h, err := n.host.Height(); err == nil {
		n.metrics.SetHeight(h)
	}
	return n.server.Start()
}

// Stop shuts down the HTTP server.
func (n *Node) Stop() error {
	return n.server.Stop()
}

func (n *Node) Host() *host.Host {
	return n.host
}

func (n *Node) PoolAddress() string {
	return n.poolAddress
}

func (n *Node) RouterAddress() string {
	return n.routerAddress
}

// GetHandler returns the HTTP handler (for testing)
func (n *Node) GetHandler() http.Handler {
	return n.server.GetHandler()
}

// resolve maps the well-known labels to deployed addresses. Anything else
// is taken to be an address.
func (n *Node) resolve(contract string) string {
	switch contract {
	case LabelPool:
		return n.poolAddress
	case LabelRouter:
		return n.routerAddress
	default:
		return strings.ToLower(contract)
	}
}
