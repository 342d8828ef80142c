package testutil

import (
	"context"
	"testing"

	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/signer"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSettlementSuite drives the settlement contract through a host backed by
// the given store. It checks that committed state survives across
// invocations and that failed invocations leave no trace in the backend.
func RunSettlementSuite(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	ctx := context.Background()
	owner, depositor, payee := Address(1), Address(2), Address(3)

	setup := func(t *testing.T) (*host.Host, persistence.Store, string, *signer.Signer) {
		store := newStore(t)
		t.Cleanup(func() { _ = store.Close() })

		h, err := host.NewHost(store, &host.Config{ChainID: "suite-1"}, NewTestLogger(t, false))
		require.NoError(t, err)
		h.RegisterCode("multiswap", multiswap.New(sigverify.Secp256k1{}))

		res, err := h.Instantiate(ctx, "multiswap", owner, "pool", nil, host.MustJSON(multiswap.InstantiateMsg{Owner: owner}))
		require.NoError(t, err)
		pool := res.Contract

		s, err := signer.Generate()
		require.NoError(t, err)
		for _, msg := range []multiswap.ExecuteMsg{
			{AddFoundryAsset: &multiswap.FoundryAssetMsg{Token: "uusdc"}},
			{AddSigner: &multiswap.SignerMsg{Signer: s.Address()}},
		} {
			_, err := h.Execute(ctx, pool, owner, nil, host.MustJSON(msg))
			require.NoError(t, err)
		}
		require.NoError(t, h.Mint(ctx, depositor, []types.Coin{types.NewCoin("uusdc", 1000)}))
		return h, store, pool, s
	}

	balance := func(t *testing.T, h *host.Host, addr string) string {
		t.Helper()
		b, err := h.Balance(ctx, addr, "uusdc")
		require.NoError(t, err)
		return b.String()
	}

	t.Run("LiquidityAndWithdrawal", func(t *testing.T) {
		h, _, pool, s := setup(t)

		add := multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(700)}}
		_, err := h.Execute(ctx, pool, depositor, []types.Coin{types.NewCoin("uusdc", 700)}, host.MustJSON(add))
		require.NoError(t, err)

		sig, err := s.SignWithdrawal(sigverify.WithdrawSignMessage{
			ChainID: "suite-1", Payee: payee, Token: "uusdc", Amount: types.NewUint128(200), Salt: "suite-salt",
		})
		require.NoError(t, err)
		withdraw := multiswap.ExecuteMsg{WithdrawSigned: &multiswap.WithdrawSignedMsg{
			Payee: payee, Token: "uusdc", Amount: types.NewUint128(200), Salt: "suite-salt", Signature: sig,
		}}
		res, err := h.Execute(ctx, pool, depositor, nil, host.MustJSON(withdraw))
		require.NoError(t, err)
		require.Len(t, res.Instructions, 1)

		assert.Equal(t, "300", balance(t, h, depositor))
		assert.Equal(t, "500", balance(t, h, pool))
		assert.Equal(t, "200", balance(t, h, payee))

		_, err = h.Execute(ctx, pool, depositor, nil, host.MustJSON(withdraw))
		assert.ErrorIs(t, err, multiswap.ErrUsedSalt)

		out, err := h.Query(ctx, pool, []byte(`{"all_liquidity":{}}`))
		require.NoError(t, err)
		assert.JSONEq(t, `[{"user":"`+depositor+`","token":"uusdc","amount":"700"}]`, string(out))
	})

	t.Run("EmptySaltReplay", func(t *testing.T) {
		h, _, pool, s := setup(t)

		add := multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(500)}}
		_, err := h.Execute(ctx, pool, depositor, []types.Coin{types.NewCoin("uusdc", 500)}, host.MustJSON(add))
		require.NoError(t, err)

		sig, err := s.SignWithdrawal(sigverify.WithdrawSignMessage{
			ChainID: "suite-1", Payee: payee, Token: "uusdc", Amount: types.NewUint128(100), Salt: "",
		})
		require.NoError(t, err)
		withdraw := multiswap.ExecuteMsg{WithdrawSigned: &multiswap.WithdrawSignedMsg{
			Payee: payee, Token: "uusdc", Amount: types.NewUint128(100), Salt: "", Signature: sig,
		}}
		_, err = h.Execute(ctx, pool, depositor, nil, host.MustJSON(withdraw))
		require.NoError(t, err)

		_, err = h.Execute(ctx, pool, depositor, nil, host.MustJSON(withdraw))
		require.ErrorIs(t, err, multiswap.ErrUsedSalt)
		assert.Equal(t, "100", balance(t, h, payee))
		assert.Equal(t, "400", balance(t, h, pool))
	})

	t.Run("FailedInvocationWritesNothing", func(t *testing.T) {
		h, store, pool, _ := setup(t)

		snapshot := func() map[string]string {
			m := map[string]string{}
			require.NoError(t, store.Iterate(nil, nil, func(k, v []byte) bool {
				m[string(k)] = string(v)
				return true
			}))
			return m
		}
		before := snapshot()

		// Funds move to the pool before the contract rejects the deposit.
		bad := multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(5)}}
		_, err := h.Execute(ctx, pool, depositor, []types.Coin{types.NewCoin("uusdc", 6)}, host.MustJSON(bad))
		require.ErrorIs(t, err, multiswap.ErrInvalidDeposit)

		assert.Equal(t, before, snapshot())
		assert.Equal(t, "1000", balance(t, h, depositor))
	})
}
