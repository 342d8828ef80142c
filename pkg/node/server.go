package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

/*
Server exposes the host over HTTP.

  POST /execute   {"chain_id","contract","sender","nonce","funds":[{denom,amount}],"msg":{...}}
                  Runs one atomic invocation and returns its events and
                  instructions. "contract" is an address or one of the
                  genesis labels "multiswap" and "fiberrouter".
                  X-Multiswap-Signature carries the sender's personal-sign
                  signature over the raw body: 401 when it is missing or
                  malformed, 403 when it recovers to another address, 409
                  when nonce is not the sender's next nonce.
  GET  /nonce     ?address=  Next nonce /execute accepts from address.
  POST /query     {"contract","msg":{...}}
                  Returns the contract's query JSON unchanged.
  GET  /balance   ?address=&denom=
  GET  /contracts Lists deployed contracts.
  GET  /health    200 when the store answers.
  GET  /metrics   Prometheus exposition.

Every response carries X-Request-Id. Requests beyond the configured rate
are rejected with 429.
*/

const (
	HeaderRequestID = "X-Request-Id"
	HeaderSignature = "X-Multiswap-Signature"

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type ctxKey int

const requestIDKey ctxKey = iota

// Server handles HTTP requests for the node
type Server struct {
	node       *Node
	httpServer *http.Server
	limiter    *rate.Limiter
}

// NewServer creates a new server instance
func NewServer(node *Node, port int) *Server {
	s := &Server{
		node: node,
	}
	if node.cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(node.cfg.RateLimit), node.cfg.RateBurst)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/balance", s.handleBalance)
	mux.HandleFunc("/nonce", s.handleNonce)
	mux.HandleFunc("/contracts", s.handleContracts)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", node.metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.withRequestID(s.withRateLimit(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.node.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.node.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		s.node.logger.Sugar().Debugw("Handled request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.node.logger.Sugar().Warnw("Rate limit exceeded", "request_id", requestID(r.Context()), "remote", r.RemoteAddr)
			writeError(w, r, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
