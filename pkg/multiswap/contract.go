package multiswap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Event actions.
const (
	ActionTransferOwnership  = "transfer_ownership"
	ActionSetFee             = "set_fee"
	ActionAddSigner          = "add_signer"
	ActionRemoveSigner       = "remove_signer"
	ActionAddFoundryAsset    = "add_foundry_asset"
	ActionRemoveFoundryAsset = "remove_foundry_asset"
	ActionAddLiquidity       = "add_liquidity"
	ActionRemoveLiquidity    = "remove_liquidity"
	ActionWithdrawSigned     = "withdraw_signed"
	ActionSwap               = "swap"
)

// Contract is the bridge settlement contract. It holds no state of its own;
// everything lives in the store passed with each call.
type Contract struct {
	crypto sigverify.Crypto
}

var _ types.Contract = (*Contract)(nil)

// New creates the contract with the given signature recovery capability.
func New(crypto sigverify.Crypto) *Contract {
	return &Contract{crypto: crypto}
}

// Instantiate validates and stores the initial owner.
func (c *Contract) Instantiate(deps types.Deps, _ types.Env, _ types.MessageInfo, raw []byte) (*types.Response, error) {
	var msg InstantiateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if err := deps.API.ValidateAddress(msg.Owner); err != nil {
		return nil, fmt.Errorf("%w: owner %q: %v", ErrInvalidAddress, msg.Owner, err)
	}
	if err := saveOwner(deps.Storage, msg.Owner); err != nil {
		return nil, err
	}
	return types.NewResponse().AddAttribute("action", "instantiate").AddAttribute("owner", msg.Owner), nil
}

// Execute decodes raw into an ExecuteMsg and dispatches it.
func (c *Contract) Execute(deps types.Deps, env types.Env, info types.MessageInfo, raw []byte) (*types.Response, error) {
	var msg ExecuteMsg
	if err := decodeMsg(raw, &msg); err != nil {
		return nil, err
	}
	return c.ExecuteMsg(deps, env, info, msg)
}

// ExecuteMsg dispatches a decoded message.
func (c *Contract) ExecuteMsg(deps types.Deps, env types.Env, info types.MessageInfo, msg ExecuteMsg) (*types.Response, error) {
	switch {
	case msg.TransferOwnership != nil:
		return transferOwnership(deps, info, msg.TransferOwnership.NewOwner)
	case msg.SetFee != nil:
		return setFee(deps, info, msg.SetFee)
	case msg.AddSigner != nil:
		return addSigner(deps, info, msg.AddSigner.Signer)
	case msg.RemoveSigner != nil:
		return removeSigner(deps, info, msg.RemoveSigner.Signer)
	case msg.AddFoundryAsset != nil:
		return addFoundryAsset(deps, info, msg.AddFoundryAsset.Token)
	case msg.RemoveFoundryAsset != nil:
		return removeFoundryAsset(deps, info, msg.RemoveFoundryAsset.Token)
	case msg.AddLiquidity != nil:
		return addLiquidity(deps, info, msg.AddLiquidity)
	case msg.RemoveLiquidity != nil:
		return removeLiquidity(deps, info, msg.RemoveLiquidity)
	case msg.WithdrawSigned != nil:
		return c.withdrawSigned(deps, env, info, msg.WithdrawSigned)
	case msg.Swap != nil:
		return swap(info, msg.Swap)
	default:
		return nil, ErrUnknownMessage
	}
}

func actionEvent(action string) types.Event {
	return types.NewEvent(action).Add("action", action)
}

func respond(e types.Event) *types.Response {
	return types.NewResponse().AddEvent(e)
}

// requireOwner fails with ErrUnauthorized unless sender is the stored owner.
func requireOwner(deps types.Deps, sender string) error {
	owner, err := loadOwner(deps.Storage)
	if err != nil {
		return err
	}
	if sender != owner {
		return ErrUnauthorized
	}
	return nil
}

func transferOwnership(deps types.Deps, info types.MessageInfo, newOwner string) (*types.Response, error) {
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	if err := deps.API.ValidateAddress(newOwner); err != nil {
		return nil, fmt.Errorf("%w: new owner %q: %v", ErrInvalidAddress, newOwner, err)
	}
	if err := saveOwner(deps.Storage, newOwner); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionTransferOwnership).
		Add("prev_owner", info.Sender).
		Add("new_owner", newOwner)), nil
}

func setFee(deps types.Deps, info types.MessageInfo, msg *SetFeeMsg) (*types.Response, error) {
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	if err := saveFee(deps.Storage, &FeeConfig{Token: msg.Token, Amount: msg.Amount}); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionSetFee).
		Add("from", info.Sender).
		Add("token", msg.Token).
		Add("amount", msg.Amount.String())), nil
}

// normalizeSigner returns the lower-case 0x form that signature recovery produces.
func normalizeSigner(signer string) (string, error) {
	if !strings.HasPrefix(signer, "0x") || !common.IsHexAddress(signer) {
		return "", fmt.Errorf("%w: signer %q", ErrInvalidAddress, signer)
	}
	return strings.ToLower(signer), nil
}

func addSigner(deps types.Deps, info types.MessageInfo, signer string) (*types.Response, error) {
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	normalized, err := normalizeSigner(signer)
	if err != nil {
		return nil, err
	}
	if err := signers.Add(deps.Storage, normalized); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionAddSigner).
		Add("from", info.Sender).
		Add("signer", normalized)), nil
}

func removeSigner(deps types.Deps, info types.MessageInfo, signer string) (*types.Response, error) {
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	// Removal never fails on input shape; an unknown signer is a no-op.
	normalized := strings.ToLower(signer)
	if err := signers.Remove(deps.Storage, normalized); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionRemoveSigner).
		Add("from", info.Sender).
		Add("signer", normalized)), nil
}

func addFoundryAsset(deps types.Deps, info types.MessageInfo, token string) (*types.Response, error) {
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	if err := validateDenom(token); err != nil {
		return nil, err
	}
	if err := foundryAssets.Add(deps.Storage, token); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionAddFoundryAsset).
		Add("from", info.Sender).
		Add("token", token)), nil
}

func removeFoundryAsset(deps types.Deps, info types.MessageInfo, token string) (*types.Response, error) {
	if err := requireOwner(deps, info.Sender); err != nil {
		return nil, err
	}
	if err := foundryAssets.Remove(deps.Storage, token); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionRemoveFoundryAsset).
		Add("from", info.Sender).
		Add("token", token)), nil
}

func requireFoundryAsset(deps types.Deps, token string) error {
	ok, err := foundryAssets.Has(deps.Storage, token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFoundryAsset, token)
	}
	return nil
}

// requireExactFunds checks that funds is exactly one coin of token and amount.
func requireExactFunds(funds []types.Coin, token string, amount types.Uint128) error {
	if len(funds) != 1 {
		return fmt.Errorf("%w: expected exactly one coin, got %d", ErrInvalidDeposit, len(funds))
	}
	if funds[0].Denom != token {
		return fmt.Errorf("%w: expected denom %s, got %s", ErrInvalidDeposit, token, funds[0].Denom)
	}
	if !funds[0].Amount.Equal(amount) {
		return fmt.Errorf("%w: expected amount %s, got %s", ErrInvalidDeposit, amount, funds[0].Amount)
	}
	return nil
}

func addLiquidity(deps types.Deps, info types.MessageInfo, msg *LiquidityMsg) (*types.Response, error) {
	if err := requireFoundryAsset(deps, msg.Token); err != nil {
		return nil, err
	}
	if err := requireExactFunds(info.Funds, msg.Token, msg.Amount); err != nil {
		return nil, err
	}

	entry, err := loadLiquidity(deps.Storage, msg.Token, info.Sender)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = &Liquidity{User: info.Sender, Token: msg.Token}
	}
	sum, err := entry.Amount.CheckedAdd(msg.Amount)
	if err != nil {
		return nil, fmt.Errorf("add liquidity %s for %s: %w", msg.Token, info.Sender, err)
	}
	entry.Amount = sum
	if err := saveLiquidity(deps.Storage, entry); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionAddLiquidity).
		Add("from", info.Sender).
		Add("token", msg.Token).
		Add("amount", msg.Amount.String())), nil
}

// removeLiquidity debits the ledger before the payout instruction is built,
// so a failed debit never yields a transfer.
func removeLiquidity(deps types.Deps, info types.MessageInfo, msg *LiquidityMsg) (*types.Response, error) {
	if err := requireFoundryAsset(deps, msg.Token); err != nil {
		return nil, err
	}

	entry, err := loadLiquidity(deps.Storage, msg.Token, info.Sender)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: liquidity for %s does not exist", ErrNotFound, msg.Token)
	}
	remaining, err := entry.Amount.CheckedSub(msg.Amount)
	if err != nil {
		return nil, fmt.Errorf("remove liquidity %s for %s: %w", msg.Token, info.Sender, err)
	}
	entry.Amount = remaining
	if err := saveLiquidity(deps.Storage, entry); err != nil {
		return nil, err
	}

	rsp := types.NewResponse().AddInstruction(types.Instruction{
		BankSend: &types.BankSend{
			ToAddress: info.Sender,
			Amount:    []types.Coin{{Denom: msg.Token, Amount: msg.Amount}},
		},
	})
	return rsp.AddEvent(actionEvent(ActionRemoveLiquidity).
		Add("from", info.Sender).
		Add("token", msg.Token).
		Add("amount", msg.Amount.String())), nil
}

func (c *Contract) withdrawSigned(deps types.Deps, env types.Env, info types.MessageInfo, msg *WithdrawSignedMsg) (*types.Response, error) {
	if err := requireFoundryAsset(deps, msg.Token); err != nil {
		return nil, err
	}
	if err := deps.API.ValidateAddress(msg.Payee); err != nil {
		return nil, fmt.Errorf("%w: payee %q: %v", ErrInvalidAddress, msg.Payee, err)
	}

	signer, err := sigverify.RecoverSigner(c.crypto, sigverify.WithdrawSignMessage{
		ChainID: env.ChainID,
		Payee:   msg.Payee,
		Token:   msg.Token,
		Amount:  msg.Amount,
		Salt:    msg.Salt,
	}, msg.Signature)
	if err != nil {
		return nil, err
	}

	registered, err := signers.Has(deps.Storage, signer)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSigner, signer)
	}

	used, err := usedMessages.Has(deps.Storage, msg.Salt)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: %s", ErrUsedSalt, msg.Salt)
	}
	if err := usedMessages.Add(deps.Storage, msg.Salt); err != nil {
		return nil, err
	}

	rsp := types.NewResponse().AddInstruction(types.Instruction{
		BankSend: &types.BankSend{
			ToAddress: msg.Payee,
			Amount:    []types.Coin{{Denom: msg.Token, Amount: msg.Amount}},
		},
	})
	return rsp.AddEvent(actionEvent(ActionWithdrawSigned).
		Add("from", info.Sender).
		Add("payee", msg.Payee).
		Add("token", msg.Token).
		Add("amount", msg.Amount.String()).
		Add("signer", signer).
		Add("salt", msg.Salt).
		Add("signature", msg.Signature)), nil
}

// swap records an outbound transfer intent. The source token is not checked
// against the foundry allowlist.
func swap(info types.MessageInfo, msg *SwapMsg) (*types.Response, error) {
	if err := requireExactFunds(info.Funds, msg.Token, msg.Amount); err != nil {
		return nil, err
	}

	return respond(actionEvent(ActionSwap).
		Add("from", info.Sender).
		Add("token", msg.Token).
		Add("amount", msg.Amount.String()).
		Add("target_chain_id", msg.TargetChainID).
		Add("target_token", msg.TargetToken).
		Add("target_address", msg.TargetAddress)), nil
}
