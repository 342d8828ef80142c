package host

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	maxCallDepth = 8

	// ContractAddressAttribute is prepended to every event so consumers can
	// tell which contract emitted it.
	ContractAddressAttribute = "_contract_address"
)

var (
	keyHeight          = []byte("host/height")
	keyInstanceSeq     = []byte("host/instance_seq")
	prefixInstances    = []byte("host/contracts/")
	prefixContractData = "contract/"
)

// Config configures a Host.
type Config struct {
	// ChainID is reported to contracts in Env and bound into withdrawal signatures.
	ChainID string
	// Now returns the block time. Defaults to time.Now.
	Now func() time.Time
}

// Instance is the persisted record of an instantiated contract.
type Instance struct {
	Address string `json:"address"`
	CodeID  string `json:"code_id"`
	Label   string `json:"label"`
	Creator string `json:"creator"`
	Height  uint64 `json:"height"`
}

// Result describes a committed invocation.
type Result struct {
	Contract     string              `json:"contract"`
	Height       uint64              `json:"height"`
	Attributes   []types.Attribute   `json:"attributes,omitempty"`
	Events       []types.Event       `json:"events"`
	Instructions []types.Instruction `json:"instructions"`
}

// Host runs contracts against a persistence.Store. Each invocation executes
// against a write buffer; its state writes, bank movements and nested calls
// commit in one atomic batch or not at all. Invocations are serialized.
type Host struct {
	mu      sync.RWMutex
	store   persistence.Store
	api     types.AddressAPI
	codes   map[string]types.Contract
	chainID string
	now     func() time.Time
	logger  *zap.Logger
}

// NewHost creates a host over store. Contract code must be registered with
// RegisterCode before instances using it can run.
func NewHost(store persistence.Store, cfg *Config, logger *zap.Logger) (*Host, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg == nil || cfg.ChainID == "" {
		return nil, fmt.Errorf("chain id is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Host{
		store:   store,
		api:     EthAddressAPI{},
		codes:   make(map[string]types.Contract),
		chainID: cfg.ChainID,
		now:     now,
		logger:  logger,
	}, nil
}

// API returns the address validator handed to contracts.
func (h *Host) API() types.AddressAPI {
	return h.api
}

// ChainID returns the configured chain id.
func (h *Host) ChainID() string {
	return h.chainID
}

// RegisterCode makes contract code available under codeID.
func (h *Host) RegisterCode(codeID string, code types.Contract) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes[codeID] = code
}

// Height returns the height of the last committed invocation.
func (h *Host) Height() (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return loadUint64(h.store, keyHeight)
}

func loadUint64(store persistence.KVStore, key []byte) (uint64, error) {
	raw, err := store.Get(key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt counter at %q", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func saveUint64(store persistence.KVStore, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return store.Set(key, buf)
}

func instanceKey(addr string) []byte {
	return append(append([]byte{}, prefixInstances...), addr...)
}

func contractNamespace(store persistence.KVStore, addr string) persistence.KVStore {
	return persistence.NewPrefixStore(store, []byte(prefixContractData+addr+"/"))
}

// deriveAddress builds a contract address from the code id and a global
// instance sequence number.
func deriveAddress(codeID string, seq uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	hash := crypto.Keccak256([]byte("contract/"), []byte(codeID), buf)
	return hexutil.Encode(hash[12:])
}

// Instantiate creates a new instance of codeID and runs its instantiate entry point.
func (h *Host) Instantiate(ctx context.Context, codeID, sender, label string, funds []types.Coin, msg []byte) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, ok := h.codes[codeID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCode, "code %s", codeID)
	}

	return h.commit(func(tx *persistence.Overlay, env types.Env, res *Result) error {
		return h.instantiate(ctx, tx, env, code, codeID, sender, label, funds, msg, res)
	})
}

func (h *Host) instantiate(ctx context.Context, tx *persistence.Overlay, env types.Env, code types.Contract, codeID, sender, label string, funds []types.Coin, msg []byte, res *Result) error {
	seq, err := loadUint64(tx, keyInstanceSeq)
	if err != nil {
		return err
	}
	addr := deriveAddress(codeID, seq)
	if err := saveUint64(tx, keyInstanceSeq, seq+1); err != nil {
		return err
	}

	inst := &Instance{Address: addr, CodeID: codeID, Label: label, Creator: sender, Height: env.Height}
	if err := persistence.SaveRecord(tx, instanceKey(addr), inst); err != nil {
		return err
	}

	res.Contract = addr
	env.Contract = addr
	info, err := h.moveFunds(tx, sender, addr, funds)
	if err != nil {
		return err
	}

	rsp, err := code.Instantiate(h.deps(tx, addr), env, info, msg)
	if err != nil {
		return errors.Wrapf(err, "instantiate %s", codeID)
	}

	h.logger.Sugar().Infow("Instantiated contract", "code_id", codeID, "address", addr, "label", label, "creator", sender)
	return h.process(ctx, tx, env, addr, rsp, res, 0)
}

// Execute runs msg against contract on behalf of sender. funds are moved
// from sender to the contract before the call.
func (h *Host) Execute(ctx context.Context, contract, sender string, funds []types.Coin, msg []byte) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return h.commit(func(tx *persistence.Overlay, env types.Env, res *Result) error {
		res.Contract = contract
		return h.call(ctx, tx, env, contract, sender, funds, msg, res, 0)
	})
}

// commit runs fn against a fresh overlay at the next height and applies the
// buffered writes atomically when fn succeeds.
func (h *Host) commit(fn func(tx *persistence.Overlay, env types.Env, res *Result) error) (*Result, error) {
	tx := persistence.NewOverlay(h.store)

	height, err := loadUint64(tx, keyHeight)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load height")
	}
	env := types.Env{ChainID: h.chainID, Height: height + 1, Time: h.now().UTC()}
	res := &Result{Height: env.Height, Events: []types.Event{}, Instructions: []types.Instruction{}}

	if err := fn(tx, env, res); err != nil {
		return nil, err
	}
	if err := saveUint64(tx, keyHeight, env.Height); err != nil {
		return nil, err
	}
	if err := h.store.Apply(tx.Ops()); err != nil {
		return nil, errors.Wrapf(err, "failed to commit height %d", env.Height)
	}
	return res, nil
}

func (h *Host) deps(store persistence.KVStore, addr string) types.Deps {
	return types.Deps{Storage: contractNamespace(store, addr), API: h.api}
}

func (h *Host) lookup(store persistence.KVStore, addr string) (types.Contract, error) {
	inst, err := persistence.LoadRecord[Instance](store, instanceKey(addr))
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.Wrapf(ErrUnknownContract, "contract %s", addr)
	}
	code, ok := h.codes[inst.CodeID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCode, "code %s for contract %s", inst.CodeID, addr)
	}
	return code, nil
}

// moveFunds validates sender and funds and transfers them to the contract.
func (h *Host) moveFunds(tx persistence.KVStore, sender, contract string, funds []types.Coin) (types.MessageInfo, error) {
	if err := h.api.ValidateAddress(sender); err != nil {
		return types.MessageInfo{}, errors.Wrapf(ErrInvalidSender, "%v", err)
	}
	if err := validateCoins(funds); err != nil {
		return types.MessageInfo{}, err
	}
	sorted := sortCoins(funds)
	if err := (bank{store: tx}).send(sender, contract, sorted); err != nil {
		return types.MessageInfo{}, err
	}
	return types.MessageInfo{Sender: sender, Funds: sorted}, nil
}

func (h *Host) call(ctx context.Context, tx *persistence.Overlay, env types.Env, contract, sender string, funds []types.Coin, msg []byte, res *Result, depth int) error {
	if depth > maxCallDepth {
		return ErrCallDepthExceeded
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	code, err := h.lookup(tx, contract)
	if err != nil {
		return err
	}

	info, err := h.moveFunds(tx, sender, contract, funds)
	if err != nil {
		return err
	}

	env.Contract = contract
	rsp, err := code.Execute(h.deps(tx, contract), env, info, msg)
	if err != nil {
		return errors.Wrapf(err, "execute %s", contract)
	}

	return h.process(ctx, tx, env, contract, rsp, res, depth)
}

// process records the response and executes its instructions in order.
func (h *Host) process(ctx context.Context, tx *persistence.Overlay, env types.Env, contract string, rsp *types.Response, res *Result, depth int) error {
	if rsp == nil {
		return nil
	}

	res.Attributes = append(res.Attributes, rsp.Attributes...)
	for _, e := range rsp.Events {
		tagged := types.Event{
			Type:       e.Type,
			Attributes: append([]types.Attribute{{Key: ContractAddressAttribute, Value: contract}}, e.Attributes...),
		}
		res.Events = append(res.Events, tagged)
	}

	b := bank{store: tx}
	for i, instr := range rsp.Instructions {
		res.Instructions = append(res.Instructions, instr)

		switch {
		case instr.BankSend != nil:
			send := instr.BankSend
			if err := h.api.ValidateAddress(send.ToAddress); err != nil {
				return errors.Wrapf(ErrInvalidInstruction, "bank send %d recipient: %v", i, err)
			}
			if err := validateCoins(send.Amount); err != nil {
				return errors.Wrapf(err, "bank send %d", i)
			}
			if err := b.send(contract, send.ToAddress, send.Amount); err != nil {
				return errors.Wrapf(err, "bank send %d from %s", i, contract)
			}
			h.logger.Sugar().Debugw("Executed bank send", "from", contract, "to", send.ToAddress, "amount", coinsString(send.Amount))

		case instr.WasmExecute != nil:
			exec := instr.WasmExecute
			if err := h.call(ctx, tx, env, exec.ContractAddr, contract, exec.Funds, exec.Msg, res, depth+1); err != nil {
				return err
			}

		default:
			return errors.Wrapf(ErrInvalidInstruction, "instruction %d is empty", i)
		}
	}
	return nil
}

// Query runs a read-only query. Any writes the contract attempts are discarded.
func (h *Host) Query(ctx context.Context, contract string, msg []byte) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := persistence.NewOverlay(h.store)
	code, err := h.lookup(tx, contract)
	if err != nil {
		return nil, err
	}

	height, err := loadUint64(tx, keyHeight)
	if err != nil {
		return nil, err
	}
	env := types.Env{ChainID: h.chainID, Height: height, Time: h.now().UTC(), Contract: contract}

	out, err := code.Query(h.deps(tx, contract), env, msg)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", contract)
	}
	return out, nil
}

// Balance returns the bank balance of addr in denom.
func (h *Host) Balance(_ context.Context, addr, denom string) (types.Uint128, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return bank{store: h.store}.balance(addr, denom)
}

// Mint credits coins to addr outside of any contract call. Used for genesis
// balances and tests.
func (h *Host) Mint(_ context.Context, addr string, coins []types.Coin) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := persistence.NewOverlay(h.store)
	if err := h.mint(tx, addr, coins); err != nil {
		return err
	}
	if err := h.store.Apply(tx.Ops()); err != nil {
		return errors.Wrap(err, "failed to commit mint")
	}
	return nil
}

func (h *Host) mint(tx persistence.KVStore, addr string, coins []types.Coin) error {
	if err := h.api.ValidateAddress(addr); err != nil {
		return errors.Wrapf(ErrInvalidSender, "%v", err)
	}
	if err := validateCoins(coins); err != nil {
		return err
	}

	b := bank{store: tx}
	for _, c := range coins {
		if err := b.mint(addr, c); err != nil {
			return err
		}
	}

	h.logger.Sugar().Infow("Minted coins", "address", addr, "amount", coinsString(coins))
	return nil
}

// Instances lists every instantiated contract ordered by address.
func (h *Host) Instances() ([]Instance, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	instances := make([]Instance, 0)
	var decodeErr error
	err := h.store.Iterate(prefixInstances, persistence.PrefixEnd(prefixInstances), func(key, value []byte) bool {
		inst, err := persistence.UnmarshalRecord[Instance](value)
		if err != nil {
			decodeErr = errors.Wrapf(err, "corrupt instance %q", key)
			return false
		}
		instances = append(instances, *inst)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Address < instances[j].Address })
	return instances, nil
}

// FindInstance returns the first instance with the given label, or nil.
func (h *Host) FindInstance(label string) (*Instance, error) {
	instances, err := h.Instances()
	if err != nil {
		return nil, err
	}
	for i := range instances {
		if instances[i].Label == label {
			return &instances[i], nil
		}
	}
	return nil, nil
}

func coinsString(coins []types.Coin) string {
	parts := make([]string, len(coins))
	for i, c := range coins {
		parts[i] = c.Amount.String() + c.Denom
	}
	return strings.Join(parts, ",")
}

// MustJSON encodes v, panicking on failure. For building messages in tests
// and fixtures.
func MustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
