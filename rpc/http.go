package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prizechain/core"
	"prizechain/core/events"
	"prizechain/native/bounty"
	"prizechain/observability/metrics"
)

const (
	defaultMaxRequestBytes = 1 << 20
	defaultWaitTimeout     = 10 * time.Second
	requestIDHeader        = "X-Request-ID"
)

type contextKey string

const requestIDKey contextKey = "rpc.requestId"

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Options tune the server. Zero values select defaults.
type Options struct {
	Auth               AuthConfig
	RateLimitPerSecond float64
	RateBurst          int
	MaxRequestBytes    int64
	WaitTimeout        time.Duration
	ReadHeaderTimeout  time.Duration
	Logger             *slog.Logger
}

// Server exposes the ledger and the bounty read side over JSON-RPC 2.0.
type Server struct {
	ledger    *core.Ledger
	programID solana.PublicKey
	reader    *bounty.Reader
	feed      *events.Feed

	auth        *Authenticator
	limiter     *rateLimiter
	maxBody     int64
	waitTimeout time.Duration
	readHeader  time.Duration
	logger      *slog.Logger
	methods     map[string]method
}

type method struct {
	handler func(ctx context.Context, params []json.RawMessage) (interface{}, error)
	write   bool
}

// NewServer builds a server over ledger. feed may be nil, which disables the
// /ws event stream.
func NewServer(ledger *core.Ledger, programID solana.PublicKey, feed *events.Feed, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ledger:      ledger,
		programID:   programID,
		reader:      bounty.NewReader(programID, ledger.State()),
		feed:        feed,
		auth:        NewAuthenticator(opts.Auth, logger),
		limiter:     newRateLimiter(opts.RateLimitPerSecond, opts.RateBurst),
		maxBody:     opts.MaxRequestBytes,
		waitTimeout: opts.WaitTimeout,
		readHeader:  opts.ReadHeaderTimeout,
		logger:      logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxRequestBytes
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = defaultWaitTimeout
	}
	if s.readHeader <= 0 {
		s.readHeader = 5 * time.Second
	}
	s.methods = map[string]method{
		"getBalance":           {handler: s.getBalance},
		"getAccountInfo":       {handler: s.getAccountInfo},
		"getRound":             {handler: s.getRound},
		"getMinimumBalance":    {handler: s.getMinimumBalance},
		"getReceipt":           {handler: s.getReceipt},
		"sendTransaction":      {handler: s.sendTransaction, write: true},
		"requestAirdrop":       {handler: s.requestAirdrop, write: true},
		"bounty_getConfig":     {handler: s.bountyGetConfig},
		"bounty_get":           {handler: s.bountyGet},
		"bounty_list":          {handler: s.bountyList},
		"bounty_deriveAddress": {handler: s.bountyDeriveAddress},
	}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Post("/", s.handle)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleEventsWS)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return otelhttp.NewHandler(r, "prized.rpc")
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.readHeader,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"round":  s.ledger.Round().Round,
	})
}

// handle decodes one JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	w.Header().Set("Content-Type", "application/json")

	req, rpcErr := s.decodeRequest(w, r)
	if rpcErr != nil {
		s.finish(w, r, req, nil, rpcErr, started)
		return
	}
	if !s.limiter.allow(clientID(r)) {
		metrics.RPC().ObserveRateLimited()
		s.finish(w, r, req, nil, &RPCError{Code: codeRateLimited, Message: "rate limit exceeded"}, started)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		s.finish(w, r, req, nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}, started)
		return
	}
	if m.write {
		if authErr := s.auth.Authorize(r); authErr != nil {
			s.finish(w, r, req, nil, authErr, started)
			return
		}
	}
	result, err := m.handler(r.Context(), req.Params)
	if err != nil {
		s.finish(w, r, req, nil, toRPCError(err), started)
		return
	}
	s.finish(w, r, req, result, nil, started)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*RPCRequest, *RPCError) {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, &RPCError{Code: codeInvalidRequest, Message: fmt.Sprintf("request body exceeds %d bytes", s.maxBody)}
		}
		return nil, &RPCError{Code: codeInvalidRequest, Message: "failed to read request body", Data: err.Error()}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"}
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()}
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return req, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC}
	}
	if req.Method == "" {
		return req, &RPCError{Code: codeInvalidRequest, Message: "method required"}
	}
	return req, nil
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, req *RPCRequest, result interface{}, rpcErr *RPCError, started time.Time) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion}
	name := "invalid"
	if req != nil {
		resp.ID = req.ID
		if _, known := s.methods[req.Method]; known {
			name = req.Method
		}
	}
	code := 0
	if rpcErr != nil {
		resp.Error = rpcErr
		code = rpcErr.Code
		if status := httpStatus(rpcErr); status != http.StatusOK {
			w.WriteHeader(status)
		}
	} else if raw, err := json.Marshal(result); err != nil {
		resp.Error = &RPCError{Code: codeServerError, Message: "encode result", Data: err.Error()}
		code = codeServerError
	} else {
		resp.Result = raw
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("rpc: write response", slog.Any("error", err))
	}
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("rpc.method", name), attribute.Int("rpc.jsonrpc.error_code", code))
	if code == codeServerError {
		span.SetStatus(codes.Error, resp.Error.Message)
	}
	took := time.Since(started)
	metrics.RPC().ObserveRequest(name, code, took)
	s.logger.Debug("rpc request",
		slog.String("requestId", RequestID(r.Context())),
		slog.String("method", name),
		slog.Int("code", code),
		slog.Duration("took", took))
}
