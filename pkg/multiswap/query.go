package multiswap

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/multiswap-go/pkg/types"
)

// Query decodes raw into a QueryMsg and returns the JSON encoded result.
func (c *Contract) Query(deps types.Deps, env types.Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	if err := decodeMsg(raw, &msg); err != nil {
		return nil, err
	}
	result, err := c.QueryMsg(deps, env, msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// QueryMsg answers a decoded query. Queries never write.
func (c *Contract) QueryMsg(deps types.Deps, _ types.Env, msg QueryMsg) (any, error) {
	switch {
	case msg.Owner != nil:
		return loadOwner(deps.Storage)
	case msg.Fee != nil:
		return queryFee(deps)
	case msg.Liquidity != nil:
		return queryLiquidity(deps, msg.Liquidity.Owner, msg.Liquidity.Token)
	case msg.AllLiquidity != nil:
		return pageLiquidity(deps.Storage, msg.AllLiquidity.StartAfter, pageLimit(msg.AllLiquidity.Limit))
	case msg.Signers != nil:
		return signers.Page(deps.Storage, msg.Signers.StartAfter, pageLimit(msg.Signers.Limit))
	case msg.FoundryAssets != nil:
		return foundryAssets.Page(deps.Storage, msg.FoundryAssets.StartAfter, pageLimit(msg.FoundryAssets.Limit))
	default:
		return nil, ErrUnknownMessage
	}
}

func queryFee(deps types.Deps) (*FeeConfig, error) {
	fee, err := loadFee(deps.Storage)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return nil, fmt.Errorf("%w: fee", ErrNotFound)
	}
	return fee, nil
}

func queryLiquidity(deps types.Deps, owner, token string) (*Liquidity, error) {
	if err := deps.API.ValidateAddress(owner); err != nil {
		return nil, fmt.Errorf("%w: owner %q: %v", ErrInvalidAddress, owner, err)
	}
	entry, err := loadLiquidity(deps.Storage, token, owner)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: liquidity for %s owned by %s", ErrNotFound, token, owner)
	}
	return entry, nil
}
