// Package fiberrouter is a thin forwarding contract. It relays swaps and
// signed withdrawals to a configured multiswap pool and lets its owner
// repoint the pool.
package fiberrouter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidAddress = errors.New("invalid address")
	ErrUnknownMessage = errors.New("unknown message")
	ErrNotFound       = errors.New("not found")
)

const (
	ActionTransferOwnership = "transfer_ownership"
	ActionSetPool           = "set_pool"
	ActionWithdrawSigned    = "withdraw_signed"
	ActionSwap              = "swap"
)

var (
	keyOwner = []byte("owner")
	keyPool  = []byte("pool")
)

type InstantiateMsg struct {
	Owner string `json:"owner"`
	Pool  string `json:"pool"`
}

// ExecuteMsg is a tagged union; exactly one field must be set.
type ExecuteMsg struct {
	TransferOwnership *multiswap.TransferOwnershipMsg `json:"transfer_ownership,omitempty"`
	SetPool           *SetPoolMsg                     `json:"set_pool,omitempty"`
	WithdrawSigned    *multiswap.WithdrawSignedMsg    `json:"withdraw_signed,omitempty"`
	Swap              *multiswap.SwapMsg              `json:"swap,omitempty"`
}

func (m ExecuteMsg) count() int {
	n := 0
	for _, set := range []bool{m.TransferOwnership != nil, m.SetPool != nil, m.WithdrawSigned != nil, m.Swap != nil} {
		if set {
			n++
		}
	}
	return n
}

type SetPoolMsg struct {
	Pool string `json:"pool"`
}

type QueryMsg struct {
	Owner *struct{} `json:"owner,omitempty"`
	Pool  *struct{} `json:"pool,omitempty"`
}

// Router implements types.Contract.
type Router struct{}

var _ types.Contract = Router{}

func (Router) Instantiate(deps types.Deps, _ types.Env, _ types.MessageInfo, raw []byte) (*types.Response, error) {
	var msg InstantiateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if err := validate(deps, "owner", msg.Owner); err != nil {
		return nil, err
	}
	if err := validate(deps, "pool", msg.Pool); err != nil {
		return nil, err
	}
	if err := deps.Storage.Set(keyOwner, []byte(msg.Owner)); err != nil {
		return nil, err
	}
	if err := deps.Storage.Set(keyPool, []byte(msg.Pool)); err != nil {
		return nil, err
	}
	return types.NewResponse(), nil
}

func (Router) Execute(deps types.Deps, _ types.Env, info types.MessageInfo, raw []byte) (*types.Response, error) {
	var msg ExecuteMsg
	if err := decode(raw, &msg); err != nil {
		return nil, err
	}

	if n := msg.count(); n != 1 {
		return nil, fmt.Errorf("%w: expected exactly one operation, got %d", ErrUnknownMessage, n)
	}

	switch {
	case msg.TransferOwnership != nil:
		return transferOwnership(deps, info, msg.TransferOwnership.NewOwner)
	case msg.SetPool != nil:
		return setPool(deps, info, msg.SetPool.Pool)
	case msg.WithdrawSigned != nil:
		return withdrawSigned(deps, msg.WithdrawSigned)
	default:
		return swap(deps, info, msg.Swap)
	}
}

func (Router) Query(deps types.Deps, _ types.Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	if err := decode(raw, &msg); err != nil {
		return nil, err
	}

	var key []byte
	switch {
	case msg.Owner != nil && msg.Pool == nil:
		key = keyOwner
	case msg.Pool != nil && msg.Owner == nil:
		key = keyPool
	default:
		return nil, fmt.Errorf("%w: expected exactly one query", ErrUnknownMessage)
	}

	v, err := load(deps, key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func decode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	return nil
}

func validate(deps types.Deps, field, addr string) error {
	if err := deps.API.ValidateAddress(addr); err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidAddress, field, addr, err)
	}
	return nil
}

func load(deps types.Deps, key []byte) (string, error) {
	v, err := deps.Storage.Get(key)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return string(v), nil
}

func requireOwner(deps types.Deps, sender string) error {
	owner, err := load(deps, keyOwner)
	if err != nil {
		return err
	}
	if sender != owner {
		return ErrUnauthorized
	}
	return nil
}

func transferOwnership(deps types.Deps, info types.MessageInfo, newOwner string) (*types.Response, error) {
	if err := validate(deps, "new owner", newOwner); err != nil {
		return nil, err
	}
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	if err := deps.Storage.Set(keyOwner, []byte(newOwner)); err != nil {
		return nil, err
	}

	e := types.NewEvent(ActionTransferOwnership).
		Add("action", ActionTransferOwnership).
		Add("prev_owner", info.Sender).
		Add("new_owner", newOwner)
	return types.NewResponse().AddEvent(e), nil
}

func setPool(deps types.Deps, info types.MessageInfo, pool string) (*types.Response, error) {
	if err := validate(deps, "pool", pool); err != nil {
		return nil, err
	}
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	if err := deps.Storage.Set(keyPool, []byte(pool)); err != nil {
		return nil, err
	}

	e := types.NewEvent(ActionSetPool).
		Add("action", ActionSetPool).
		Add("from", info.Sender).
		Add("pool", pool)
	return types.NewResponse().AddEvent(e), nil
}

// forward builds a call to the pool carrying msg.
func forward(deps types.Deps, msg multiswap.ExecuteMsg, funds []types.Coin) (types.Instruction, error) {
	pool, err := load(deps, keyPool)
	if err != nil {
		return types.Instruction{}, err
	}
	if err := validate(deps, "pool", pool); err != nil {
		return types.Instruction{}, err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{WasmExecute: &types.WasmExecute{
		ContractAddr: pool,
		Msg:          body,
		Funds:        funds,
	}}, nil
}

func withdrawSigned(deps types.Deps, msg *multiswap.WithdrawSignedMsg) (*types.Response, error) {
	instr, err := forward(deps, multiswap.ExecuteMsg{WithdrawSigned: msg}, nil)
	if err != nil {
		return nil, err
	}
	return types.NewResponse().
		AddInstruction(instr).
		AddAttribute("action", ActionWithdrawSigned).
		AddAttribute("payee", msg.Payee).
		AddAttribute("token", msg.Token).
		AddAttribute("amount", msg.Amount.String()), nil
}

func swap(deps types.Deps, info types.MessageInfo, msg *multiswap.SwapMsg) (*types.Response, error) {
	instr, err := forward(deps, multiswap.ExecuteMsg{Swap: msg}, info.Funds)
	if err != nil {
		return nil, err
	}
	return types.NewResponse().
		AddInstruction(instr).
		AddAttribute("action", ActionSwap).
		AddAttribute("token", msg.Token).
		AddAttribute("amount", msg.Amount.String()).
		AddAttribute("target_chain_id", msg.TargetChainID).
		AddAttribute("target_token", msg.TargetToken).
		AddAttribute("target_address", msg.TargetAddress), nil
}
