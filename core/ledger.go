package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"lukechampine.com/blake3"

	ledgererrors "prizechain/core/errors"
	"prizechain/core/events"
	"prizechain/core/state"
	"prizechain/core/types"
	"prizechain/mempool"
	"prizechain/native/system"
	"prizechain/observability/metrics"
	"prizechain/storage"
)

var roundTransactions, _ = otel.Meter("prizechain/core").Int64Counter(
	"ledger.round.transactions",
	metric.WithDescription("Transactions executed by rounds, by outcome."),
)

// LedgerConfig tunes round execution.
type LedgerConfig struct {
	// MaxTransactionAge is how many rounds a RecentRound stays valid.
	MaxTransactionAge    uint64
	MaxTxsPerRound       int
	MaxPending           int
	LamportsPerSignature uint64
	Rent                 types.Rent
	AirdropEnabled       bool
	AirdropLimit         uint64
}

// DefaultLedgerConfig mirrors the defaults written by config.Load.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxTransactionAge:    150,
		MaxTxsPerRound:       512,
		MaxPending:           4096,
		LamportsPerSignature: 5000,
		Rent:                 types.DefaultRent(),
		AirdropLimit:         10_000_000_000,
	}
}

// RoundSummary describes an executed round.
type RoundSummary struct {
	Round     uint64 `json:"round"`
	Timestamp int64  `json:"timestamp"`
	Committed int    `json:"committed"`
	Failed    int    `json:"failed"`
	// Digest is the BLAKE3 hash of the committed signatures in order.
	Digest [32]byte `json:"digest"`
}

// Ledger orders transactions into rounds and applies each atomically.
// Within a round a transaction whose writable accounts overlap those of an
// earlier committed transaction is rejected with ErrAccountInUse and may be
// resubmitted.
type Ledger struct {
	execMu sync.Mutex

	state   *state.Manager
	runtime *Runtime
	pool    *mempool.Pool
	cfg     LedgerConfig

	mu      sync.Mutex
	waiters map[solana.Signature][]chan *types.Receipt
	last    RoundSummary

	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewLedger opens the ledger on db, crediting genesis the first time.
func NewLedger(db storage.Database, cfg LedgerConfig, genesis map[solana.PublicKey]uint64, programs ...types.Program) (*Ledger, error) {
	mgr := state.NewManager(db)
	applied, err := mgr.GenesisApplied()
	if err != nil {
		return nil, err
	}
	if !applied {
		if err := mgr.ApplyGenesis(genesis); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
	}
	rt := NewRuntime(cfg.Rent, cfg.LamportsPerSignature)
	for _, p := range programs {
		if err := rt.Register(p); err != nil {
			return nil, err
		}
	}
	round, err := mgr.Round()
	if err != nil {
		return nil, err
	}
	return &Ledger{
		state:   mgr,
		runtime: rt,
		pool:    mempool.New(cfg.MaxPending),
		cfg:     cfg,
		waiters: make(map[solana.Signature][]chan *types.Receipt),
		last:    RoundSummary{Round: round},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   time.Now,
	}, nil
}

// SetEmitter configures where committed events go. Passing nil resets the
// emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger
}

// SetNowFunc overrides the round clock. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

// State exposes committed state for read-only queries.
func (l *Ledger) State() *state.Manager { return l.state }

// Runtime exposes the program registry and fee schedule.
func (l *Ledger) Runtime() *Runtime { return l.runtime }

// Config returns the ledger configuration.
func (l *Ledger) Config() LedgerConfig { return l.cfg }

// Round returns the summary of the last executed round.
func (l *Ledger) Round() RoundSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Pending reports the number of queued transactions.
func (l *Ledger) Pending() int { return l.pool.Len() }

// Submit validates tx and queues it for the next round.
func (l *Ledger) Submit(tx *types.Transaction) (solana.Signature, error) {
	if tx == nil {
		return solana.Signature{}, fmt.Errorf("%w: nil transaction", ledgererrors.ErrInvalidTransaction)
	}
	if err := tx.Verify(); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ledgererrors.ErrInvalidTransaction, err)
	}
	if _, seen, err := l.state.SignatureRound(tx.Signature); err != nil {
		return solana.Signature{}, err
	} else if seen {
		return solana.Signature{}, ledgererrors.ErrDuplicateTransaction
	}
	if err := l.checkAge(tx, l.Round().Round); err != nil {
		return solana.Signature{}, err
	}
	switch err := l.pool.Add(tx); {
	case errors.Is(err, mempool.ErrDuplicate):
		return solana.Signature{}, ledgererrors.ErrDuplicateTransaction
	case errors.Is(err, mempool.ErrPoolFull):
		return solana.Signature{}, ledgererrors.ErrPoolFull
	case err != nil:
		return solana.Signature{}, err
	}
	metrics.Ledger().SetPending(l.pool.Len())
	return tx.Signature, nil
}

// SubmitAndWait queues tx and blocks until its receipt is available or ctx
// ends.
func (l *Ledger) SubmitAndWait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ledgererrors.ErrInvalidTransaction)
	}
	ch := l.wait(tx.Signature)
	if _, err := l.Submit(tx); err != nil {
		l.unwait(tx.Signature, ch)
		return nil, err
	}
	select {
	case receipt := <-ch:
		return receipt, nil
	case <-ctx.Done():
		l.unwait(tx.Signature, ch)
		return nil, ctx.Err()
	}
}

func (l *Ledger) wait(sig solana.Signature) chan *types.Receipt {
	ch := make(chan *types.Receipt, 1)
	l.mu.Lock()
	l.waiters[sig] = append(l.waiters[sig], ch)
	l.mu.Unlock()
	return ch
}

func (l *Ledger) unwait(sig solana.Signature, ch chan *types.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.waiters[sig]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(l.waiters, sig)
		return
	}
	l.waiters[sig] = list
}

func (l *Ledger) deliver(receipt *types.Receipt) {
	l.mu.Lock()
	list := l.waiters[receipt.Signature]
	delete(l.waiters, receipt.Signature)
	l.mu.Unlock()
	for _, ch := range list {
		ch <- receipt
	}
}

func (l *Ledger) checkAge(tx *types.Transaction, current uint64) error {
	if tx.RecentRound > current {
		return fmt.Errorf("%w: %d > %d", ledgererrors.ErrRecentRoundAhead, tx.RecentRound, current)
	}
	if current-tx.RecentRound > l.cfg.MaxTransactionAge {
		return fmt.Errorf("%w: round %d is %d rounds old", ledgererrors.ErrTransactionExpired, tx.RecentRound, current-tx.RecentRound)
	}
	return nil
}

// ExecuteRound drains up to MaxTxsPerRound pending transactions into a new
// round and returns its summary. Every taken transaction gets a receipt.
func (l *Ledger) ExecuteRound(ctx context.Context) (RoundSummary, error) {
	l.execMu.Lock()
	defer l.execMu.Unlock()

	started := time.Now()
	prev := l.Round().Round
	round := prev + 1
	clock := l.nowFn().Unix()

	ctx, span := otel.Tracer("prizechain/core").Start(ctx, "ledger.round")
	defer span.End()

	txs := l.pool.Take(l.cfg.MaxTxsPerRound)
	metrics.Ledger().SetPending(l.pool.Len())
	locked := make(map[solana.PublicKey]struct{})
	summary := RoundSummary{Round: round, Timestamp: clock}
	digest := blake3.New(32, nil)
	var receipts []*types.Receipt

	for i, tx := range txs {
		receipt, outcome := l.apply(tx, prev, round, clock, locked)
		metrics.Ledger().ObserveTransaction(outcome)
		receipts = append(receipts, receipt)
		if receipt.Committed() {
			summary.Committed++
			digest.Write(tx.Signature[:])
			continue
		}
		summary.Failed++
		if err := l.state.PutReceipt(receipt); err != nil {
			err = fmt.Errorf("ledger: store receipt: %w", err)
			return summary, l.abortRound(summary, receipts, txs[i+1:], err)
		}
	}
	copy(summary.Digest[:], digest.Sum(nil))

	if err := l.state.SetRound(round); err != nil {
		return summary, l.abortRound(summary, receipts, nil, err)
	}
	l.mu.Lock()
	l.last = summary
	l.mu.Unlock()

	for _, receipt := range receipts {
		l.deliver(receipt)
	}
	span.SetAttributes(
		attribute.Int64("round", int64(round)),
		attribute.Int("committed", summary.Committed),
		attribute.Int("failed", summary.Failed),
	)
	metrics.Ledger().ObserveRound(round, time.Since(started))
	if len(txs) > 0 {
		roundTransactions.Add(ctx, int64(summary.Committed), metric.WithAttributes(attribute.String("outcome", "committed")))
		roundTransactions.Add(ctx, int64(summary.Failed), metric.WithAttributes(attribute.String("outcome", "failed")))
		l.logger.Debug("round executed",
			slog.Uint64("round", round),
			slog.Int("committed", summary.Committed),
			slog.Int("failed", summary.Failed))
	}
	return summary, nil
}

// abortRound ends a round that hit a storage failure. Transactions that
// already committed stay committed and the round height is recorded for
// them. Every waiter is released: executed transactions get their receipt and
// the ones never reached get a failed receipt carrying cause.
func (l *Ledger) abortRound(summary RoundSummary, receipts []*types.Receipt, skipped []*types.Transaction, cause error) error {
	for _, tx := range skipped {
		receipts = append(receipts, &types.Receipt{
			Signature: tx.Signature,
			Round:     summary.Round,
			Status:    types.ReceiptStatusFailed,
			Error:     receiptError(cause),
		})
	}
	err := cause
	if summary.Committed > 0 {
		if setErr := l.state.SetRound(summary.Round); setErr != nil {
			err = errors.Join(cause, setErr)
		}
	}
	for _, receipt := range receipts {
		l.deliver(receipt)
	}
	return err
}

// apply executes one transaction of the round. prev is the last executed
// round, which RecentRound is checked against.
func (l *Ledger) apply(tx *types.Transaction, prev, round uint64, clock int64, locked map[solana.PublicKey]struct{}) (*types.Receipt, string) {
	receipt := &types.Receipt{Signature: tx.Signature, Round: round, Status: types.ReceiptStatusFailed}
	reject := func(err error, outcome string) (*types.Receipt, string) {
		receipt.Error = receiptError(err)
		return receipt, outcome
	}

	if err := l.checkAge(tx, prev); err != nil {
		return reject(err, "expired")
	}
	if _, seen, err := l.state.SignatureRound(tx.Signature); err != nil {
		return reject(err, "failed")
	} else if seen {
		return reject(ledgererrors.ErrDuplicateTransaction, "duplicate")
	}
	writable := tx.WritableAccounts()
	for _, addr := range writable {
		if _, busy := locked[addr]; busy {
			return reject(fmt.Errorf("%w: %s", ledgererrors.ErrAccountInUse, addr), "account_in_use")
		}
	}

	ov := l.state.Begin()
	exec, err := l.runtime.Execute(ov, tx, clock)
	if err != nil {
		ov.Discard()
		return reject(err, "failed")
	}
	receipt.Status = types.ReceiptStatusCommitted
	receipt.Fee = exec.Fee
	receipt.Events = exec.Events
	if err := ov.CommitTransaction(receipt); err != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Fee = 0
		receipt.Events = nil
		return reject(err, "failed")
	}
	for _, addr := range writable {
		locked[addr] = struct{}{}
	}
	for _, evt := range exec.Events {
		evt := evt
		metrics.Bounty().ObserveEvent(&evt)
		l.emitter.Emit(events.Committed{Round: round, Signature: tx.Signature, Event: evt})
	}
	return receipt, "committed"
}

// Run executes a round every interval until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("ledger: round interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := l.ExecuteRound(ctx); err != nil {
				l.logger.Error("round execution failed", slog.Any("error", err))
				return err
			}
		}
	}
}

// Account returns the committed account at addr, or nil.
func (l *Ledger) Account(addr solana.PublicKey) (*types.Account, error) {
	return l.state.GetAccount(addr)
}

// Balance returns the committed lamports at addr.
func (l *Ledger) Balance(addr solana.PublicKey) (uint64, error) {
	return l.state.Balance(addr)
}

// Receipt returns the receipt for sig, or nil when it has not executed.
func (l *Ledger) Receipt(sig solana.Signature) (*types.Receipt, error) {
	return l.state.Receipt(sig)
}

// Airdrop credits a wallet from nothing. It is a development faucet and is
// refused unless enabled.
func (l *Ledger) Airdrop(addr solana.PublicKey, lamports uint64) error {
	if !l.cfg.AirdropEnabled {
		return ledgererrors.ErrAirdropDisabled
	}
	if lamports == 0 || lamports > l.cfg.AirdropLimit {
		return fmt.Errorf("%w: %d lamports, limit %d", ledgererrors.ErrAirdropLimit, lamports, l.cfg.AirdropLimit)
	}
	l.execMu.Lock()
	defer l.execMu.Unlock()
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc != nil && !acc.Owner.Equals(system.ProgramID) {
		return fmt.Errorf("%w: airdrop target %s is a program account", ledgererrors.ErrForeignAccount, addr)
	}
	ov := l.state.Begin()
	if err := ov.Credit(addr, lamports); err != nil {
		ov.Discard()
		return err
	}
	if err := ov.Commit(); err != nil {
		return err
	}
	l.logger.Info("airdrop", slog.String("address", addr.String()), slog.Uint64("lamports", lamports))
	return nil
}
