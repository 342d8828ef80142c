package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/config"
	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/node"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/memory"
	"github.com/Layr-Labs/multiswap-go/pkg/signer"
	"github.com/Layr-Labs/multiswap-go/pkg/testutil"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = &RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  time.Millisecond,
	MaxBackoff:      5 * time.Millisecond,
	BackoffMultiple: 2.0,
}

func newClient(t *testing.T, baseURL string, s *signer.Signer) *Client {
	t.Helper()
	c, err := NewClient(&ClientConfig{
		BaseURL:     baseURL,
		RetryConfig: fastRetry,
		Signer:      s,
		Logger:      testutil.NewTestLogger(t, false),
	})
	require.NoError(t, err)
	return c
}

func newSigner(t *testing.T) *signer.Signer {
	t.Helper()
	s, err := signer.Generate()
	require.NoError(t, err)
	return s
}

// startNode runs a node whose genesis funds user with 500uusdc.
func startNode(t *testing.T, user string) string {
	t.Helper()
	owner := testutil.Address(1)
	n, err := node.NewNode(node.Config{
		ChainID:       "transport-1",
		Owner:         owner,
		FoundryAssets: []string{"uusdc"},
		GenesisBalances: []config.GenesisBalance{
			{Address: user, Denom: "uusdc", Amount: types.NewUint128(500)},
		},
	}, memory.NewMemoryPersistence())
	require.NoError(t, err)
	require.NoError(t, n.Bootstrap(context.Background()))

	srv := httptest.NewServer(n.GetHandler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// fakeNode answers /health and /nonce like a node and sends /execute to
// execute.
func fakeNode(t *testing.T, execute http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok","chain_id":"fake-1","height":3}`))
		case "/nonce":
			_, _ = w.Write([]byte(`{"address":"` + r.URL.Query().Get("address") + `","nonce":4}`))
		case "/execute":
			execute(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{BaseURL: "not a url", Logger: testutil.NewTestLogger(t, false)})
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{BaseURL: "http://localhost:8000"})
	assert.Error(t, err)
}

func TestClient_AgainstNode(t *testing.T) {
	ctx := context.Background()
	s := newSigner(t)
	user := s.Address()
	c := newClient(t, startNode(t, user)+"/", s)

	require.NoError(t, c.Health(ctx))
	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "transport-1", status.ChainID)
	assert.Equal(t, uint64(1), status.Height)

	contracts, err := c.Contracts(ctx)
	require.NoError(t, err)
	labels := make([]string, 0, len(contracts))
	for _, inst := range contracts {
		labels = append(labels, inst.Label)
	}
	assert.ElementsMatch(t, []string{node.LabelPool, node.LabelRouter}, labels)

	res, err := c.Execute(ctx, node.ExecuteRequest{
		Contract: node.LabelPool,
		Funds:    []types.Coin{types.NewCoin("uusdc", 120)},
		Msg:      host.MustJSON(multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(120)}}),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, multiswap.ActionAddLiquidity, res.Events[0].Type)

	var entry multiswap.Liquidity
	require.NoError(t, c.Query(ctx, node.LabelPool, multiswap.QueryMsg{
		Liquidity: &multiswap.LiquidityQuery{Owner: user, Token: "uusdc"},
	}, &entry))
	assert.Equal(t, "120", entry.Amount.String())

	bal, err := c.Balance(ctx, user, "uusdc")
	require.NoError(t, err)
	assert.Equal(t, "380", bal.String())

	nonce, err := c.Nonce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestClient_ExecuteRequiresSigner(t *testing.T) {
	c := newClient(t, "http://localhost:8000", nil)
	_, err := c.Execute(context.Background(), node.ExecuteRequest{Contract: "x", Msg: []byte(`{}`)})
	assert.ErrorContains(t, err, "signer")
}

func TestClient_ExecuteCannotSpendForOthers(t *testing.T) {
	ctx := context.Background()
	victim := newSigner(t)
	baseURL := startNode(t, victim.Address())

	c := newClient(t, baseURL, newSigner(t))
	_, err := c.Execute(ctx, node.ExecuteRequest{
		Contract: node.LabelPool,
		Sender:   victim.Address(),
		Funds:    []types.Coin{types.NewCoin("uusdc", 100)},
		Msg:      host.MustJSON(multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(100)}}),
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)

	bal, err := c.Balance(ctx, victim.Address(), "uusdc")
	require.NoError(t, err)
	assert.Equal(t, "500", bal.String())
}

func TestClient_ExecuteSignsBody(t *testing.T) {
	s := newSigner(t)
	var got node.ExecuteRequest
	srv := fakeNode(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))

		addr, err := sigverify.RecoverMessageSigner(sigverify.Secp256k1{}, body, r.Header.Get(node.HeaderSignature))
		assert.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
		_, _ = w.Write([]byte(`{"contract":"x","height":4,"events":[],"instructions":[]}`))
	})

	res, err := newClient(t, srv.URL, s).Execute(context.Background(), node.ExecuteRequest{Contract: "x", Msg: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Height)
	assert.Equal(t, "fake-1", got.ChainID)
	assert.Equal(t, s.Address(), got.Sender)
	assert.Equal(t, uint64(4), got.Nonce)
}

func TestClient_StatusError(t *testing.T) {
	ctx := context.Background()
	s := newSigner(t)
	c := newClient(t, startNode(t, s.Address()), s)

	_, err := c.Execute(ctx, node.ExecuteRequest{
		Contract: node.LabelPool,
		Msg:      host.MustJSON(multiswap.ExecuteMsg{AddSigner: &multiswap.SignerMsg{Signer: testutil.Address(9)}}),
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Contains(t, se.Message, "unauthorized")
	assert.NotEmpty(t, se.RequestID)
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	var calls atomic.Int32
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-Id"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"denom":"uusdc","amount":"7"}`))
	}))
	defer srv.Close()

	bal, err := newClient(t, srv.URL, nil).Balance(context.Background(), testutil.Address(1), "uusdc")
	require.NoError(t, err)
	assert.Equal(t, "7", bal.String())
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2])
}

func TestClient_ExecuteNotRetriedAfterFailure(t *testing.T) {
	var calls atomic.Int32
	srv := fakeNode(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := newClient(t, srv.URL, newSigner(t)).Execute(context.Background(), node.ExecuteRequest{Contract: "x", Msg: []byte(`{}`)})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ExecuteRetriedWhenThrottled(t *testing.T) {
	var calls atomic.Int32
	var sigs []string
	srv := fakeNode(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		sigs = append(sigs, r.Header.Get(node.HeaderSignature))
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := newClient(t, srv.URL, newSigner(t)).Execute(context.Background(), node.ExecuteRequest{Contract: "x", Msg: []byte(`{}`)})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, int32(fastRetry.MaxAttempts), calls.Load())
	require.Len(t, sigs, fastRetry.MaxAttempts)
	assert.NotEmpty(t, sigs[0])
	assert.Equal(t, sigs[0], sigs[len(sigs)-1])
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(&ClientConfig{
		BaseURL:     srv.URL,
		RetryConfig: &RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiple: 1},
		Logger:      testutil.NewTestLogger(t, false),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Health(ctx), context.DeadlineExceeded)
}
