package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/gagliardetto/solana-go"

	"prizechain/cmd/internal/passphrase"
	"prizechain/config"
	"prizechain/core"
	"prizechain/core/events"
	"prizechain/core/types"
	"prizechain/crypto"
	"prizechain/native/bounty"
	"prizechain/observability/metrics"
	"prizechain/rpc"
	"prizechain/storage"
)

// node bundles the long-running pieces of the daemon.
type node struct {
	cfg       *config.Config
	db        storage.Database
	ledger    *core.Ledger
	server    *rpc.Server
	operator  solana.PrivateKey
	programID solana.PublicKey
	logger    *slog.Logger
}

func openNode(cfg *config.Config, configDir string, pass *passphrase.Source, logger *slog.Logger) (*node, error) {
	operator, err := loadOperatorKey(cfg.OperatorKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("load operator key: %w", err)
	}
	programID, err := cfg.BountyProgramID(bounty.DefaultProgramID)
	if err != nil {
		return nil, fmt.Errorf("bounty program id: %w", err)
	}
	operatorAddr := operator.PublicKey()
	genesis, err := cfg.GenesisAllocations(configDir, &operatorAddr)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	engine := bounty.NewEngine(programID)
	engine.SetLogger(logger)
	ledger, err := core.NewLedger(db, cfg.LedgerConfig(), genesis, engine)
	if err != nil {
		db.Close()
		return nil, err
	}
	ledger.SetLogger(logger)

	feed := events.NewFeed(256)
	ledger.SetEmitter(events.MultiEmitter{feed, eventLogger{logger: logger}})

	server := rpc.NewServer(ledger, programID, feed, rpc.Options{
		Auth:               authConfig(cfg.RPC, os.LookupEnv),
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateBurst:          cfg.RPC.RateBurst,
		MaxRequestBytes:    cfg.RPC.MaxBodyBytes,
		WaitTimeout:        time.Duration(cfg.RPC.WaitTimeoutMs) * time.Millisecond,
		ReadHeaderTimeout:  time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		Logger:             logger,
	})

	n := &node{
		cfg:       cfg,
		db:        db,
		ledger:    ledger,
		server:    server,
		operator:  operator,
		programID: programID,
		logger:    logger,
	}
	if err := n.seedEscrowMetrics(); err != nil {
		logger.Warn("Failed to seed escrow metrics", slog.Any("error", err))
	}
	logger.Info("Node opened",
		slog.String("network", cfg.NetworkName),
		slog.String("operator", operatorAddr.String()),
		slog.String("program", programID.String()),
		slog.Uint64("round", ledger.Round().Round))
	return n, nil
}

// Run produces rounds and serves JSON-RPC until ctx is cancelled.
func (n *node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	roundErr := make(chan error, 1)
	go func() { roundErr <- n.ledger.Run(ctx, n.cfg.RoundInterval()) }()

	if n.cfg.Bounty.InitializeOnStart {
		if err := n.initializeProgram(ctx); err != nil {
			cancel()
			<-roundErr
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- n.server.Start(ctx, n.cfg.RPCAddress) }()

	select {
	case err := <-roundErr:
		cancel()
		<-serveErr
		return err
	case err := <-serveErr:
		cancel()
		<-roundErr
		return err
	}
}

func (n *node) Close() {
	n.db.Close()
}

// initializeProgram creates the bounty config with the operator as
// authority when it does not exist yet.
func (n *node) initializeProgram(ctx context.Context) error {
	reader := bounty.NewReader(n.programID, n.ledger.State())
	_, addr, err := reader.GetConfig()
	if err == nil {
		n.logger.Debug("Bounty program already initialized", slog.String("config", addr.String()))
		return nil
	}
	if !errors.Is(err, bounty.ErrNotInitialized) {
		return err
	}

	ix, err := bounty.NewInitializeInstruction(n.programID, n.operator.PublicKey())
	if err != nil {
		return err
	}
	tx := types.NewTransaction(n.operator.PublicKey(), n.ledger.Round().Round, ix)
	if err := tx.Sign(n.operator); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	receipt, err := n.ledger.SubmitAndWait(waitCtx, tx)
	if err != nil {
		return fmt.Errorf("initialize bounty program: %w", err)
	}
	if !receipt.Committed() {
		return fmt.Errorf("initialize bounty program: %s: %s", receipt.Error.Name, receipt.Error.Message)
	}
	n.logger.Info("Bounty program initialized",
		slog.String("authority", n.operator.PublicKey().String()),
		slog.Uint64("round", receipt.Round))
	return nil
}

func (n *node) seedEscrowMetrics() error {
	entries, err := bounty.NewReader(n.programID, n.ledger.State()).ListBounties(bounty.ListFilter{})
	if err != nil {
		return err
	}
	var escrowed uint64
	for _, entry := range entries {
		escrowed += entry.Bounty.RewardAmount
	}
	metrics.Bounty().SetEscrowed(escrowed, len(entries))
	return nil
}

// loadOperatorKey opens the keystore with an empty passphrase first, the
// default for generated development keys, then asks pass.
func loadOperatorKey(path string, pass *passphrase.Source) (solana.PrivateKey, error) {
	key, err := crypto.LoadFromKeystore(path, "")
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keystore.ErrDecrypt) {
		return nil, err
	}
	secret, err := pass.Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, secret)
}

func authConfig(cfg config.RPC, lookupEnv func(string) (string, bool)) rpc.AuthConfig {
	read := func(name string) string {
		if name == "" {
			return ""
		}
		v, _ := lookupEnv(name)
		return v
	}
	return rpc.AuthConfig{
		Token:          read(cfg.AuthTokenEnv),
		JWTSecret:      read(cfg.JWTSecretEnv),
		Issuer:         cfg.JWTIssuer,
		AllowAnonymous: cfg.AllowUnauthenticatedWrites,
	}
}

// eventLogger writes committed program events to the node log.
type eventLogger struct {
	logger *slog.Logger
}

func (e eventLogger) Emit(evt events.Event) {
	committed, ok := evt.(events.Committed)
	if !ok {
		return
	}
	attrs := []any{
		slog.String("type", committed.Event.Type),
		slog.Uint64("round", committed.Round),
		slog.String("signature", committed.Signature.String()),
	}
	for k, v := range committed.Event.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	e.logger.Debug("Program event", attrs...)
}
