package node

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Layr-Labs/multiswap-go/pkg/config"
	"github.com/Layr-Labs/multiswap-go/pkg/fiberrouter"
	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence/memory"
	"github.com/Layr-Labs/multiswap-go/pkg/signer"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChain = "multiswap-test"

// Development keys; any sender used with execute needs one.
var (
	ownerKey = mustSigner("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	userKey  = mustSigner("0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a")

	testOwner = ownerKey.Address()
	testUser  = userKey.Address()

	senderKeys = map[string]*signer.Signer{testOwner: ownerKey, testUser: userKey}
)

func mustSigner(key string) *signer.Signer {
	s, err := signer.New(key)
	if err != nil {
		panic(err)
	}
	return s
}

type testNode struct {
	*Node
	signer  *signer.Signer
	handler http.Handler
}

func newTestNode(t *testing.T, mutate func(*Config)) *testNode {
	t.Helper()
	s, err := signer.Generate()
	require.NoError(t, err)

	cfg := Config{
		Port:          0,
		ChainID:       testChain,
		Owner:         testOwner,
		Signers:       []string{s.Address()},
		FoundryAssets: []string{"uusdc"},
		GenesisBalances: []config.GenesisBalance{
			{Address: testUser, Denom: "uusdc", Amount: types.NewUint128(1000)},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	n, err := NewNode(cfg, memory.NewMemoryPersistence())
	require.NoError(t, err)
	require.NoError(t, n.Bootstrap(context.Background()))
	return &testNode{Node: n, signer: s, handler: n.GetHandler()}
}

func (tn *testNode) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		reader = bytes.NewReader(host.MustJSON(b))
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	tn.handler.ServeHTTP(w, req)
	return w
}

// execute signs the request with the sender's key at the sender's next nonce.
func (tn *testNode) execute(t *testing.T, contract, sender string, funds []types.Coin, msg any) *httptest.ResponseRecorder {
	t.Helper()
	nonce, err := tn.Host().Nonce(sender)
	require.NoError(t, err)
	return tn.executeSigned(t, senderKeys[sender], ExecuteRequest{
		ChainID:  testChain,
		Contract: contract,
		Sender:   sender,
		Nonce:    nonce,
		Funds:    funds,
		Msg:      host.MustJSON(msg),
	})
}

// executeSigned posts req signed by key, or unsigned when key is nil.
func (tn *testNode) executeSigned(t *testing.T, key *signer.Signer, req ExecuteRequest) *httptest.ResponseRecorder {
	t.Helper()
	body := host.MustJSON(req)
	r := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	if key != nil {
		sig, err := key.SignMessage(body)
		require.NoError(t, err)
		r.Header.Set(HeaderSignature, sig)
	}
	w := httptest.NewRecorder()
	tn.handler.ServeHTTP(w, r)
	return w
}

func (tn *testNode) balance(t *testing.T, addr, denom string) string {
	t.Helper()
	w := tn.do(t, http.MethodGet, "/balance?address="+addr+"&denom="+denom, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var coin types.Coin
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &coin))
	return coin.Amount.String()
}

func TestNode_Bootstrap(t *testing.T) {
	store := memory.NewMemoryPersistence()
	cfg := Config{ChainID: testChain, Owner: testOwner, FoundryAssets: []string{"uatom"}}

	n, err := NewNode(cfg, store)
	require.NoError(t, err)
	require.NoError(t, n.Bootstrap(context.Background()))
	require.NotEmpty(t, n.PoolAddress())
	require.NotEmpty(t, n.RouterAddress())

	out, err := n.Host().Query(context.Background(), n.RouterAddress(), []byte(`{"pool":{}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"`+n.PoolAddress()+`"`, string(out))

	// A second node on the same store reuses the deployment.
	again, err := NewNode(cfg, store)
	require.NoError(t, err)
	require.NoError(t, again.Bootstrap(context.Background()))
	assert.Equal(t, n.PoolAddress(), again.PoolAddress())
	assert.Equal(t, n.RouterAddress(), again.RouterAddress())

	instances, err := again.Host().Instances()
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	_, err = NewNode(Config{}, store)
	assert.Error(t, err)

	empty, err := NewNode(Config{ChainID: testChain}, memory.NewMemoryPersistence())
	require.NoError(t, err)
	assert.Error(t, empty.Bootstrap(context.Background()))
}

func TestNode_BootstrapIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryPersistence()
	cfg := Config{
		ChainID:       testChain,
		Owner:         testOwner,
		FoundryAssets: []string{"uusdc"},
		// Rejected by the pool after balances, the pool and its assets exist.
		Signers: []string{"not-a-signer"},
		GenesisBalances: []config.GenesisBalance{
			{Address: testUser, Denom: "uusdc", Amount: types.NewUint128(1000)},
		},
	}

	broken, err := NewNode(cfg, store)
	require.NoError(t, err)
	require.ErrorIs(t, broken.Bootstrap(ctx), multiswap.ErrInvalidAddress)
	assert.Empty(t, broken.PoolAddress())

	instances, err := broken.Host().Instances()
	require.NoError(t, err)
	assert.Empty(t, instances)
	bal, err := broken.Host().Balance(ctx, testUser, "uusdc")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
	height, err := broken.Host().Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height)

	// A corrected restart on the same store funds genesis exactly once.
	s, err := signer.Generate()
	require.NoError(t, err)
	cfg.Signers = []string{s.Address()}
	fixed, err := NewNode(cfg, store)
	require.NoError(t, err)
	require.NoError(t, fixed.Bootstrap(ctx))

	bal, err = fixed.Host().Balance(ctx, testUser, "uusdc")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
	height, err = fixed.Host().Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)

	instances, err = fixed.Host().Instances()
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestHandleHealth(t *testing.T) {
	tn := newTestNode(t, nil)
	w := tn.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), testChain)

	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)

	require.NoError(t, tn.store.Close())
	w = tn.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	tn := newTestNode(t, nil)
	id := uuid.New().String()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, id)
	w := httptest.NewRecorder()
	tn.handler.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(HeaderRequestID))
}

func TestHandleExecute_LiquidityRoundTrip(t *testing.T) {
	tn := newTestNode(t, nil)
	add := multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(400)}}

	w := tn.execute(t, LabelPool, testUser, []types.Coin{types.NewCoin("uusdc", 400)}, add)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res host.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, multiswap.ActionAddLiquidity, res.Events[0].Type)
	assert.Equal(t, "600", tn.balance(t, testUser, "uusdc"))
	assert.Equal(t, "400", tn.balance(t, LabelPool, "uusdc"))

	rm := multiswap.ExecuteMsg{RemoveLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(150)}}
	w = tn.execute(t, tn.PoolAddress(), testUser, nil, rm)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "750", tn.balance(t, testUser, "uusdc"))

	w = tn.do(t, http.MethodPost, "/query", QueryRequest{
		Contract: LabelPool,
		Msg:      json.RawMessage(`{"liquidity":{"owner":"` + testUser + `","token":"uusdc"}}`),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"`+testUser+`","token":"uusdc","amount":"250"}`, w.Body.String())

	// Underflow is rejected and nothing moves.
	rm.RemoveLiquidity.Amount = types.NewUint128(251)
	w = tn.execute(t, LabelPool, testUser, nil, rm)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "750", tn.balance(t, testUser, "uusdc"))
}

func TestHandleExecute_SignedWithdrawalThroughRouter(t *testing.T) {
	tn := newTestNode(t, nil)

	swap := fiberrouter.ExecuteMsg{Swap: &multiswap.SwapMsg{
		Token: "uusdc", Amount: types.NewUint128(500), TargetChainID: "1", TargetToken: "usdc", TargetAddress: "0xabc",
	}}
	w := tn.execute(t, LabelRouter, testUser, []types.Coin{types.NewCoin("uusdc", 500)}, swap)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sig, err := tn.signer.SignWithdrawal(sigverify.WithdrawSignMessage{
		ChainID: testChain, Payee: testOwner, Token: "uusdc", Amount: types.NewUint128(300), Salt: "relay-1",
	})
	require.NoError(t, err)
	withdraw := fiberrouter.ExecuteMsg{WithdrawSigned: &multiswap.WithdrawSignedMsg{
		Payee: testOwner, Token: "uusdc", Amount: types.NewUint128(300), Salt: "relay-1", Signature: sig,
	}}

	w = tn.execute(t, LabelRouter, testUser, nil, withdraw)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "300", tn.balance(t, testOwner, "uusdc"))
	assert.Equal(t, "200", tn.balance(t, LabelPool, "uusdc"))

	w = tn.execute(t, LabelRouter, testUser, nil, withdraw)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errRsp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errRsp))
	assert.Contains(t, errRsp.Error, "used salt")
	assert.Equal(t, w.Header().Get(HeaderRequestID), errRsp.RequestID)
}

func TestHandleExecute_ErrorStatus(t *testing.T) {
	tn := newTestNode(t, nil)

	w := tn.execute(t, LabelPool, testUser, nil, multiswap.ExecuteMsg{AddSigner: &multiswap.SignerMsg{Signer: testUser}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = tn.execute(t, "0x00000000000000000000000000000000000000cc", testUser, nil, multiswap.ExecuteMsg{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = tn.execute(t, LabelPool, testUser, []types.Coin{types.NewCoin("uusdc", 5000)},
		multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(5000)}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tn.do(t, http.MethodPost, "/execute", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tn.do(t, http.MethodPost, "/execute", `{"contract":"multiswap"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tn.do(t, http.MethodGet, "/execute", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = tn.do(t, http.MethodPost, "/query", QueryRequest{Contract: LabelPool, Msg: json.RawMessage(`{"fee":{}}`)})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = tn.do(t, http.MethodGet, "/balance?address="+testUser, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExecute_Authentication(t *testing.T) {
	tn := newTestNode(t, nil)
	add := host.MustJSON(multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(100)}})
	req := ExecuteRequest{
		ChainID:  testChain,
		Contract: LabelPool,
		Sender:   testUser,
		Funds:    []types.Coin{types.NewCoin("uusdc", 100)},
		Msg:      add,
	}

	// Spending another account's balance with a key that is not theirs.
	mallory, err := signer.Generate()
	require.NoError(t, err)
	w := tn.executeSigned(t, mallory, req)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = tn.executeSigned(t, nil, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	body := host.MustJSON(req)
	r := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	r.Header.Set(HeaderSignature, "0xdeadbeef")
	rec := httptest.NewRecorder()
	tn.handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	// A signature over different bytes recovers to some other address.
	sig, err := userKey.SignMessage(body)
	require.NoError(t, err)
	tampered := req
	tampered.Funds = []types.Coin{types.NewCoin("uusdc", 1)}
	tampered.Msg = host.MustJSON(multiswap.ExecuteMsg{AddLiquidity: &multiswap.LiquidityMsg{Token: "uusdc", Amount: types.NewUint128(1)}})
	r = httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(host.MustJSON(tampered)))
	r.Header.Set(HeaderSignature, sig)
	rec = httptest.NewRecorder()
	tn.handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	other := req
	other.ChainID = "other-chain"
	w = tn.executeSigned(t, userKey, other)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	assert.Equal(t, "1000", tn.balance(t, testUser, "uusdc"))

	// The owner of the key gets through once per nonce.
	w = tn.executeSigned(t, userKey, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "900", tn.balance(t, testUser, "uusdc"))

	w = tn.executeSigned(t, userKey, req)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "900", tn.balance(t, testUser, "uusdc"))

	// Mixed-case sender addresses are accepted.
	mixed := req
	mixed.Sender = "0x" + strings.ToUpper(testUser[2:])
	mixed.Nonce = 1
	w = tn.executeSigned(t, userKey, mixed)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "800", tn.balance(t, testUser, "uusdc"))
}

func TestHandleNonce(t *testing.T) {
	tn := newTestNode(t, nil)

	nonce := func() uint64 {
		w := tn.do(t, http.MethodGet, "/nonce?address="+testUser, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var rsp NonceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
		assert.Equal(t, testUser, rsp.Address)
		return rsp.Nonce
	}
	assert.Equal(t, uint64(0), nonce())

	// Failed calls consume the nonce too.
	w := tn.execute(t, LabelPool, testUser, nil, multiswap.ExecuteMsg{AddSigner: &multiswap.SignerMsg{Signer: testUser}})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, uint64(1), nonce())

	w = tn.do(t, http.MethodGet, "/nonce?address=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = tn.do(t, http.MethodPost, "/nonce?address="+testUser, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleContracts(t *testing.T) {
	tn := newTestNode(t, nil)
	w := tn.do(t, http.MethodGet, "/contracts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var instances []host.Instance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &instances))
	labels := map[string]string{}
	for _, i := range instances {
		labels[i.Label] = i.Address
	}
	assert.Equal(t, tn.PoolAddress(), labels[LabelPool])
	assert.Equal(t, tn.RouterAddress(), labels[LabelRouter])
}

func TestRateLimit(t *testing.T) {
	tn := newTestNode(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	w := tn.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = tn.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	tn := newTestNode(t, nil)
	tn.execute(t, LabelPool, testUser, nil, multiswap.ExecuteMsg{AddSigner: &multiswap.SignerMsg{Signer: testUser}})

	w := tn.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `multiswap_requests_total{kind="execute",result="error"} 1`)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, statusForError(multiswap.ErrUnauthorized))
	assert.Equal(t, http.StatusNotFound, statusForError(host.ErrUnknownContract))
	assert.Equal(t, http.StatusBadRequest, statusForError(multiswap.ErrUsedSalt))
	assert.Equal(t, http.StatusConflict, statusForError(host.ErrInvalidNonce))
	assert.Equal(t, http.StatusBadRequest, statusForError(multiswap.ErrMalformedSignature))
	assert.Equal(t, http.StatusInternalServerError, statusForError(persistence.ErrClosed))
}
