package core

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	ledgererrors "prizechain/core/errors"
	"prizechain/core/events"
	"prizechain/core/types"
	"prizechain/native/bounty"
	"prizechain/native/system"
	"prizechain/storage"
)

const (
	testFee      = uint64(5000)
	startBalance = uint64(10_000_000_000)
	oneSOL       = uint64(1_000_000_000)
)

type ledgerFixture struct {
	t       *testing.T
	ledger  *Ledger
	program solana.PublicKey
	keys    map[string]solana.PrivateKey
}

func newLedgerFixture(t *testing.T, mutate func(*LedgerConfig), names ...string) *ledgerFixture {
	t.Helper()
	keys := make(map[string]solana.PrivateKey, len(names))
	genesis := make(map[solana.PublicKey]uint64, len(names))
	for _, name := range names {
		key, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)
		keys[name] = key
		genesis[key.PublicKey()] = startBalance
	}
	cfg := DefaultLedgerConfig()
	cfg.LamportsPerSignature = testFee
	cfg.AirdropEnabled = true
	if mutate != nil {
		mutate(&cfg)
	}
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	engine := bounty.NewEngine(bounty.DefaultProgramID)
	l, err := NewLedger(db, cfg, genesis, engine)
	require.NoError(t, err)
	l.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return &ledgerFixture{t: t, ledger: l, program: bounty.DefaultProgramID, keys: keys}
}

func (f *ledgerFixture) addr(name string) solana.PublicKey {
	return f.keys[name].PublicKey()
}

func (f *ledgerFixture) balance(addr solana.PublicKey) uint64 {
	f.t.Helper()
	bal, err := f.ledger.Balance(addr)
	require.NoError(f.t, err)
	return bal
}

func (f *ledgerFixture) signed(name string, ixs ...types.Instruction) *types.Transaction {
	f.t.Helper()
	tx := types.NewTransaction(f.addr(name), f.ledger.Round().Round, ixs...)
	require.NoError(f.t, tx.Sign(f.keys[name]))
	return tx
}

func (f *ledgerFixture) submit(name string, ixs ...types.Instruction) solana.Signature {
	f.t.Helper()
	sig, err := f.ledger.Submit(f.signed(name, ixs...))
	require.NoError(f.t, err)
	return sig
}

func (f *ledgerFixture) round() RoundSummary {
	f.t.Helper()
	summary, err := f.ledger.ExecuteRound(context.Background())
	require.NoError(f.t, err)
	return summary
}

func (f *ledgerFixture) receipt(sig solana.Signature) *types.Receipt {
	f.t.Helper()
	receipt, err := f.ledger.Receipt(sig)
	require.NoError(f.t, err)
	require.NotNil(f.t, receipt)
	return receipt
}

// exec submits a single transaction, runs a round and returns its receipt.
func (f *ledgerFixture) exec(name string, ixs ...types.Instruction) *types.Receipt {
	f.t.Helper()
	sig := f.submit(name, ixs...)
	f.round()
	return f.receipt(sig)
}

func (f *ledgerFixture) initIx(authority string) types.Instruction {
	ix, err := bounty.NewInitializeInstruction(f.program, f.addr(authority))
	require.NoError(f.t, err)
	return ix
}

func (f *ledgerFixture) createIx(creator string, id, reward uint64) types.Instruction {
	ix, err := bounty.NewCreateBountyInstruction(f.program, f.addr(creator), bounty.CreateArgs{
		BountyID:       id,
		RewardAmount:   reward,
		GithubIssueURL: "https://github.com/acme/widgets/issues/7",
		RepoName:       "acme/widgets",
		IssueNumber:    7,
	})
	require.NoError(f.t, err)
	return ix
}

func (f *ledgerFixture) bountyAddr(id uint64) solana.PublicKey {
	addr, _, err := bounty.BountyAddress(f.program, id)
	require.NoError(f.t, err)
	return addr
}

func (f *ledgerFixture) getBounty(id uint64) *bounty.Entry {
	f.t.Helper()
	entry, err := bounty.NewReader(f.program, f.ledger.State()).GetBounty(id)
	require.NoError(f.t, err)
	return entry
}

func requireCommitted(t *testing.T, receipt *types.Receipt) {
	t.Helper()
	require.True(t, receipt.Committed(), "receipt error: %+v", receipt.Error)
}

func requireFailedWith(t *testing.T, receipt *types.Receipt, name string) {
	t.Helper()
	require.False(t, receipt.Committed())
	require.NotNil(t, receipt.Error)
	require.Equal(t, name, receipt.Error.Name, receipt.Error.Message)
	require.Zero(t, receipt.Fee)
}

func TestLedgerBountyLifecycleBalances(t *testing.T) {
	f := newLedgerFixture(t, nil, "creator", "assignee", "recipient")
	feed := events.NewFeed(16)
	sub, cancel := feed.Subscribe()
	defer cancel()
	f.ledger.SetEmitter(feed)

	rent := f.ledger.Runtime().Rent()
	configRent := rent.MinimumBalance(bounty.ConfigSpace)
	bountyRent := rent.MinimumBalance(bounty.BountySpace)

	requireCommitted(t, f.exec("creator", f.initIx("creator")))
	require.Equal(t, startBalance-testFee-configRent, f.balance(f.addr("creator")))

	created := f.exec("creator", f.createIx("creator", 1, oneSOL))
	requireCommitted(t, created)
	require.Equal(t, testFee, created.Fee)
	afterCreate := startBalance - 2*testFee - configRent - bountyRent - oneSOL
	require.Equal(t, afterCreate, f.balance(f.addr("creator")))
	require.Equal(t, bountyRent+oneSOL, f.balance(f.bountyAddr(1)))

	assignIx, err := bounty.NewAssignBountyInstruction(f.program, f.bountyAddr(1), f.addr("creator"), f.addr("assignee"))
	require.NoError(t, err)
	requireCommitted(t, f.exec("creator", assignIx))
	entry := f.getBounty(1)
	require.Equal(t, bounty.StatusInProgress, entry.Bounty.Status)
	require.NotNil(t, entry.Bounty.Assignee)
	require.Equal(t, f.addr("assignee"), *entry.Bounty.Assignee)

	completeIx, err := bounty.NewCompleteBountyInstruction(f.program, f.bountyAddr(1), f.addr("creator"), f.addr("recipient"))
	require.NoError(t, err)
	completed := f.exec("creator", completeIx)
	requireCommitted(t, completed)

	require.Equal(t, startBalance+oneSOL, f.balance(f.addr("recipient")))
	require.Equal(t, startBalance, f.balance(f.addr("assignee")))
	require.Equal(t, startBalance-4*testFee-configRent-oneSOL, f.balance(f.addr("creator")))
	acc, err := f.ledger.Account(f.bountyAddr(1))
	require.NoError(t, err)
	require.Nil(t, acc)

	var seen []string
	for len(seen) < 4 {
		select {
		case evt := <-sub:
			committed, ok := evt.(events.Committed)
			require.True(t, ok)
			seen = append(seen, committed.EventType())
		case <-time.After(time.Second):
			t.Fatalf("missing events, saw %v", seen)
		}
	}
	require.Equal(t, []string{
		bounty.EventTypeInitialized,
		bounty.EventTypeCreated,
		bounty.EventTypeAssigned,
		bounty.EventTypeCompleted,
	}, seen)
	require.Len(t, completed.Events, 1)
	require.Equal(t, f.addr("recipient").String(), completed.Events[0].Attributes["recipient"])
}

func TestLedgerConcurrentCreateOneWinsOtherRetries(t *testing.T) {
	f := newLedgerFixture(t, nil, "authority", "alice", "bob")
	requireCommitted(t, f.exec("authority", f.initIx("authority")))

	first := f.submit("alice", f.createIx("alice", 1, oneSOL))
	second := f.submit("bob", f.createIx("bob", 1, oneSOL))
	bobBefore := f.balance(f.addr("bob"))

	summary := f.round()
	require.Equal(t, 1, summary.Committed)
	require.Equal(t, 1, summary.Failed)
	require.NotEqual(t, [32]byte{}, summary.Digest)

	requireCommitted(t, f.receipt(first))
	lost := f.receipt(second)
	requireFailedWith(t, lost, "AccountInUse")
	require.True(t, lost.Error.Retryable)
	require.Equal(t, bobBefore, f.balance(f.addr("bob")))

	stale := f.exec("bob", f.createIx("bob", 1, oneSOL))
	requireFailedWith(t, stale, "InvalidSequenceId")

	next, err := bounty.NewReader(f.program, f.ledger.State()).NextBountyID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), next)
	requireCommitted(t, f.exec("bob", f.createIx("bob", next, oneSOL)))
	require.Equal(t, f.addr("bob"), f.getBounty(2).Bounty.Creator)
}

func TestLedgerUnauthorizedAttemptsLeaveStateUntouched(t *testing.T) {
	f := newLedgerFixture(t, nil, "creator", "mallory")
	requireCommitted(t, f.exec("creator", f.initIx("creator")))
	requireCommitted(t, f.exec("creator", f.createIx("creator", 1, oneSOL)))

	before, err := f.ledger.Account(f.bountyAddr(1))
	require.NoError(t, err)
	malloryBefore := f.balance(f.addr("mallory"))

	cancelIx, err := bounty.NewCancelBountyInstruction(f.program, f.bountyAddr(1), f.addr("mallory"))
	require.NoError(t, err)
	requireFailedWith(t, f.exec("mallory", cancelIx), "UnauthorizedAccess")

	assignIx, err := bounty.NewAssignBountyInstruction(f.program, f.bountyAddr(1), f.addr("mallory"), f.addr("mallory"))
	require.NoError(t, err)
	requireFailedWith(t, f.exec("mallory", assignIx), "UnauthorizedAccess")

	completeIx, err := bounty.NewCompleteBountyInstruction(f.program, f.bountyAddr(1), f.addr("mallory"), f.addr("mallory"))
	require.NoError(t, err)
	requireFailedWith(t, f.exec("mallory", completeIx), "UnauthorizedAccess")

	after, err := f.ledger.Account(f.bountyAddr(1))
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, malloryBefore, f.balance(f.addr("mallory")))
}

func TestLedgerCancelRequiresOpenBounty(t *testing.T) {
	f := newLedgerFixture(t, nil, "creator", "dev")
	requireCommitted(t, f.exec("creator", f.initIx("creator")))
	requireCommitted(t, f.exec("creator", f.createIx("creator", 1, oneSOL)))

	assignIx, err := bounty.NewAssignBountyInstruction(f.program, f.bountyAddr(1), f.addr("creator"), f.addr("dev"))
	require.NoError(t, err)
	requireCommitted(t, f.exec("creator", assignIx))

	cancelIx, err := bounty.NewCancelBountyInstruction(f.program, f.bountyAddr(1), f.addr("creator"))
	require.NoError(t, err)
	receipt := f.exec("creator", cancelIx)
	requireFailedWith(t, receipt, "InvalidBountyStatus")
	require.NotNil(t, receipt.Error.Instruction)
	require.Equal(t, 0, *receipt.Error.Instruction)
	require.Equal(t, bounty.StatusInProgress, f.getBounty(1).Bounty.Status)
}

func TestLedgerCancelRefundsEscrowAndRent(t *testing.T) {
	f := newLedgerFixture(t, nil, "creator")
	requireCommitted(t, f.exec("creator", f.initIx("creator")))
	requireCommitted(t, f.exec("creator", f.createIx("creator", 1, oneSOL)))

	cancelIx, err := bounty.NewCancelBountyInstruction(f.program, f.bountyAddr(1), f.addr("creator"))
	require.NoError(t, err)
	requireCommitted(t, f.exec("creator", cancelIx))

	configRent := f.ledger.Runtime().Rent().MinimumBalance(bounty.ConfigSpace)
	require.Equal(t, startBalance-3*testFee-configRent, f.balance(f.addr("creator")))
	_, err = bounty.NewReader(f.program, f.ledger.State()).GetBounty(1)
	require.ErrorIs(t, err, bounty.ErrBountyNotFound)
}

func TestLedgerFailedInstructionRollsBackWholeTransaction(t *testing.T) {
	f := newLedgerFixture(t, nil, "creator", "friend")
	requireCommitted(t, f.exec("creator", f.initIx("creator")))
	creatorBefore := f.balance(f.addr("creator"))

	receipt := f.exec("creator",
		system.NewTransferInstruction(f.addr("creator"), f.addr("friend"), 42),
		f.createIx("creator", 5, oneSOL),
	)
	requireFailedWith(t, receipt, "InvalidSequenceId")
	require.Equal(t, 1, *receipt.Error.Instruction)
	require.Equal(t, creatorBefore, f.balance(f.addr("creator")))
	require.Equal(t, startBalance, f.balance(f.addr("friend")))
}

func TestLedgerRejectsStaleAndDuplicateTransactions(t *testing.T) {
	f := newLedgerFixture(t, func(cfg *LedgerConfig) { cfg.MaxTransactionAge = 2 }, "alice", "bob")

	stale := f.signed("alice", system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 1))
	for i := 0; i < 3; i++ {
		f.round()
	}
	_, err := f.ledger.Submit(stale)
	require.ErrorIs(t, err, ledgererrors.ErrTransactionExpired)

	ahead := types.NewTransaction(f.addr("alice"), 99, system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 1))
	require.NoError(t, ahead.Sign(f.keys["alice"]))
	_, err = f.ledger.Submit(ahead)
	require.ErrorIs(t, err, ledgererrors.ErrRecentRoundAhead)

	tx := f.signed("alice", system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 7))
	_, err = f.ledger.Submit(tx)
	require.NoError(t, err)
	_, err = f.ledger.Submit(tx)
	require.ErrorIs(t, err, ledgererrors.ErrDuplicateTransaction)
	f.round()
	requireCommitted(t, f.receipt(tx.Signature))
	_, err = f.ledger.Submit(tx)
	require.ErrorIs(t, err, ledgererrors.ErrDuplicateTransaction)
	require.Equal(t, startBalance+7, f.balance(f.addr("bob")))

	tampered := *tx
	tampered.RecentRound = f.ledger.Round().Round
	_, err = f.ledger.Submit(&tampered)
	require.ErrorIs(t, err, ledgererrors.ErrInvalidTransaction)
}

func TestLedgerPoolLimit(t *testing.T) {
	f := newLedgerFixture(t, func(cfg *LedgerConfig) { cfg.MaxPending = 1 }, "alice", "bob")
	f.submit("alice", system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 1))
	_, err := f.ledger.Submit(f.signed("alice", system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 2)))
	require.ErrorIs(t, err, ledgererrors.ErrPoolFull)
	require.Equal(t, 1, f.ledger.Pending())
}

func TestLedgerSubmitAndWaitReturnsReceipt(t *testing.T) {
	f := newLedgerFixture(t, nil, "alice", "bob")
	tx := f.signed("alice", system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 100))

	done := make(chan *types.Receipt, 1)
	go func() {
		receipt, err := f.ledger.SubmitAndWait(context.Background(), tx)
		if err == nil {
			done <- receipt
		}
		close(done)
	}()
	require.Eventually(t, func() bool { return f.ledger.Pending() == 1 }, time.Second, 5*time.Millisecond)
	summary := f.round()

	receipt, ok := <-done
	require.True(t, ok)
	requireCommitted(t, receipt)
	require.Equal(t, summary.Round, receipt.Round)
	require.Equal(t, testFee, receipt.Fee)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ledger.SubmitAndWait(ctx, f.signed("alice", system.NewTransferInstruction(f.addr("alice"), f.addr("bob"), 1)))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLedgerRunAdvancesRoundsUntilCancelled(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.ledger.Run(ctx, 5*time.Millisecond) }()
	require.Eventually(t, func() bool { return f.ledger.Round().Round >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	persisted, err := f.ledger.State().Round()
	require.NoError(t, err)
	require.GreaterOrEqual(t, persisted, uint64(3))
}

func TestLedgerAirdrop(t *testing.T) {
	f := newLedgerFixture(t, func(cfg *LedgerConfig) { cfg.AirdropLimit = 500 }, "alice")
	require.NoError(t, f.ledger.Airdrop(f.addr("alice"), 500))
	require.Equal(t, startBalance+500, f.balance(f.addr("alice")))
	require.ErrorIs(t, f.ledger.Airdrop(f.addr("alice"), 501), ledgererrors.ErrAirdropLimit)

	disabled := newLedgerFixture(t, func(cfg *LedgerConfig) { cfg.AirdropEnabled = false }, "bob")
	require.ErrorIs(t, disabled.ledger.Airdrop(disabled.addr("bob"), 1), ledgererrors.ErrAirdropDisabled)
}

func TestLedgerReopenKeepsGenesisAndRound(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	genesis := map[solana.PublicKey]uint64{key.PublicKey(): 1_000}

	first, err := NewLedger(db, DefaultLedgerConfig(), genesis)
	require.NoError(t, err)
	_, err = first.ExecuteRound(context.Background())
	require.NoError(t, err)

	second, err := NewLedger(db, DefaultLedgerConfig(), genesis)
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.Round().Round)
	bal, err := second.Balance(key.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), bal)
}

// receiptFailDB rejects direct receipt writes once armed.
type receiptFailDB struct {
	*storage.MemDB
	armed atomic.Bool
}

var errReceiptWrite = errors.New("receipt write failed")

func (db *receiptFailDB) Put(key, value []byte) error {
	if db.armed.Load() && bytes.HasPrefix(key, []byte("rcpt/")) {
		return errReceiptWrite
	}
	return db.MemDB.Put(key, value)
}

func TestLedgerReceiptStoreFailureReleasesWaiters(t *testing.T) {
	db := &receiptFailDB{MemDB: storage.NewMemDB()}
	t.Cleanup(db.Close)
	alice, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	bob := solana.NewWallet().PublicKey()

	cfg := DefaultLedgerConfig()
	cfg.LamportsPerSignature = testFee
	l, err := NewLedger(db, cfg, map[solana.PublicKey]uint64{alice.PublicKey(): startBalance}, bounty.NewEngine(bounty.DefaultProgramID))
	require.NoError(t, err)

	var waits []chan *types.Receipt
	var sigs []solana.Signature
	for _, lamports := range []uint64{oneSOL, oneSOL + 1, oneSOL + 2} {
		tx := types.NewTransaction(alice.PublicKey(), 0, system.NewTransferInstruction(alice.PublicKey(), bob, lamports))
		require.NoError(t, tx.Sign(alice))
		waits = append(waits, l.wait(tx.Signature))
		_, err := l.Submit(tx)
		require.NoError(t, err)
		sigs = append(sigs, tx.Signature)
	}

	db.armed.Store(true)
	_, err = l.ExecuteRound(context.Background())
	require.ErrorIs(t, err, errReceiptWrite)

	got := make([]*types.Receipt, len(waits))
	for i, ch := range waits {
		select {
		case got[i] = <-ch:
		case <-time.After(time.Second):
			t.Fatalf("waiter %d was not released", i)
		}
		require.Equal(t, sigs[i], got[i].Signature)
	}
	require.True(t, got[0].Committed())
	require.Equal(t, "AccountInUse", got[1].Error.Name)
	require.False(t, got[2].Committed())
	require.Equal(t, "InternalError", got[2].Error.Name)

	bal, err := l.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, oneSOL, bal)
	round, err := l.state.Round()
	require.NoError(t, err)
	require.Equal(t, uint64(1), round)
}
