package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/fiberrouter"
	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
)

// ExecuteRequest is the body of POST /execute. The sender signs the exact
// body bytes and sends the signature in HeaderSignature.
type ExecuteRequest struct {
	ChainID  string          `json:"chain_id"`
	Contract string          `json:"contract"`
	Sender   string          `json:"sender"`
	Nonce    uint64          `json:"nonce"`
	Funds    []types.Coin    `json:"funds"`
	Msg      json.RawMessage `json:"msg"`
}

// NonceResponse is the reply of GET /nonce.
type NonceResponse struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

var (
	errUnauthenticated = errors.New("request not authenticated")
	errSenderMismatch  = errors.New("signature does not match sender")
	errWrongChain      = errors.New("wrong chain id")

	forbiddenErrors = []error{multiswap.ErrUnauthorized, fiberrouter.ErrUnauthorized, errSenderMismatch}
	conflictErrors  = []error{host.ErrInvalidNonce}
	notFoundErrors  = []error{multiswap.ErrNotFound, fiberrouter.ErrNotFound, host.ErrUnknownContract}
	badRequestErrs  = []error{
		multiswap.ErrNotFoundryAsset,
		multiswap.ErrInvalidDeposit,
		multiswap.ErrInvalidSigner,
		multiswap.ErrUsedSalt,
		multiswap.ErrInvalidAddress,
		multiswap.ErrInvalidDenom,
		multiswap.ErrUnknownMessage,
		multiswap.ErrOverflow,
		multiswap.ErrUnderflow,
		multiswap.ErrMalformedSignature,
		fiberrouter.ErrInvalidAddress,
		fiberrouter.ErrUnknownMessage,
		host.ErrUnknownCode,
		host.ErrInsufficientFunds,
		host.ErrInvalidCoins,
		host.ErrInvalidSender,
		host.ErrCallDepthExceeded,
		host.ErrInvalidInstruction,
		errWrongChain,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusForError maps contract and host failures to HTTP status codes.
// Anything unrecognized is a storage or internal failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case isAny(err, forbiddenErrors):
		return http.StatusForbidden
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, badRequestErrs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), RequestID: requestID(r.Context())})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return false
	}
	return s.decodeRaw(w, r, http.MaxBytesReader(w, r.Body, maxBodyBytes), out)
}

func (s *Server) decodeRaw(w http.ResponseWriter, r *http.Request, body io.Reader, out any) bool {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("failed to parse request: %w", err))
		return false
	}
	return true
}

// authenticate checks that the body was signed by req.Sender for this chain.
func (s *Server) authenticate(r *http.Request, body []byte, req *ExecuteRequest) error {
	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", errUnauthenticated, HeaderSignature)
	}
	signer, err := sigverify.RecoverMessageSigner(sigverify.Secp256k1{}, body, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if signer != strings.ToLower(req.Sender) {
		return fmt.Errorf("%w: signed by %s", errSenderMismatch, signer)
	}
	if req.ChainID != s.node.host.ChainID() {
		return fmt.Errorf("%w: %q", errWrongChain, req.ChainID)
	}
	return nil
}

// handleExecute handles the /execute endpoint
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("failed to read request: %w", err))
		return
	}
	var req ExecuteRequest
	if !s.decodeRaw(w, r, bytes.NewReader(body), &req) {
		return
	}
	if req.Contract == "" || len(req.Msg) == 0 {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("contract and msg are required"))
		return
	}
	if err := s.authenticate(r, body, &req); err != nil {
		s.node.logger.Sugar().Infow("Execute not authenticated", "request_id", requestID(r.Context()), "sender", req.Sender, "error", err)
		writeError(w, r, statusForError(err), err)
		return
	}

	start := time.Now()
	contract := s.node.resolve(req.Contract)
	sender := strings.ToLower(req.Sender)
	res, err := s.node.host.ExecuteWithNonce(r.Context(), req.Nonce, contract, sender, req.Funds, req.Msg)
	s.node.metrics.ObserveRequest("execute", start, err)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			s.node.logger.Sugar().Errorw("Execute failed", "request_id", requestID(r.Context()), "contract", contract, "error", err)
		} else {
			s.node.logger.Sugar().Infow("Execute rejected", "request_id", requestID(r.Context()), "contract", contract, "sender", sender, "error", err)
		}
		writeError(w, r, status, err)
		return
	}

	for _, e := range res.Events {
		s.node.metrics.ObserveEvent(e.Type)
	}
	s.node.metrics.SetHeight(res.Height)
	s.node.logger.Sugar().Infow("Executed",
		"request_id", requestID(r.Context()),
		"contract", contract,
		"sender", sender,
		"nonce", req.Nonce,
		"height", res.Height,
		"events", len(res.Events),
		"instructions", len(res.Instructions),
	)
	writeJSON(w, http.StatusOK, res)
}

// handleQuery handles the /query endpoint
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Contract == "" || len(req.Msg) == 0 {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("contract and msg are required"))
		return
	}

	start := time.Now()
	out, err := s.node.host.Query(r.Context(), s.node.resolve(req.Contract), req.Msg)
	s.node.metrics.ObserveRequest("query", start, err)
	if err != nil {
		writeError(w, r, statusForError(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// handleBalance handles the /balance endpoint
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	addr := s.node.resolve(r.URL.Query().Get("address"))
	denom := r.URL.Query().Get("denom")
	if addr == "" || denom == "" {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("address and denom are required"))
		return
	}

	amount, err := s.node.host.Balance(r.Context(), addr, denom)
	if err != nil {
		writeError(w, r, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.Coin{Denom: denom, Amount: amount})
}

// handleNonce handles the /nonce endpoint
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	addr := strings.ToLower(r.URL.Query().Get("address"))
	if err := s.node.host.API().ValidateAddress(addr); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	nonce, err := s.node.host.Nonce(addr)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Address: addr, Nonce: nonce})
}

// handleContracts handles the /contracts endpoint
func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	instances, err := s.node.host.Instances()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.node.store.HealthCheck(); err != nil {
		s.node.logger.Sugar().Warnw("Health check failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	height, err := s.node.host.Height()
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"chain_id": s.node.host.ChainID(),
		"height":   height,
	})
}
