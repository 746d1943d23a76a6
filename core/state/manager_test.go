package state

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"prizechain/core/types"
	"prizechain/storage"
)

func newTestAddress(fill byte) solana.PublicKey {
	var addr solana.PublicKey
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestAccountKeyLayout(t *testing.T) {
	addr := newTestAddress(0xAB)
	key := accountKey(addr)
	require.Equal(t, "acct/", string(key[:5]))
	require.Equal(t, addr[:], key[5:])
}

func TestOverlayCommitIsVisibleAndDiscardIsNot(t *testing.T) {
	mgr := newTestManager(t)
	alice := newTestAddress(0x01)
	bob := newTestAddress(0x02)

	ov := mgr.Begin()
	require.NoError(t, ov.Credit(alice, 100))
	staged, err := ov.GetAccount(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), staged.Lamports)

	committed, err := mgr.GetAccount(alice)
	require.NoError(t, err)
	require.Nil(t, committed, "overlay writes must not leak before commit")

	require.NoError(t, ov.Commit())
	bal, err := mgr.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal)

	discarded := mgr.Begin()
	require.NoError(t, discarded.Credit(bob, 7))
	require.NoError(t, discarded.PutAccount(alice, &types.Account{}))
	discarded.Discard()

	bal, err = mgr.Balance(bob)
	require.NoError(t, err)
	require.Zero(t, bal)
	bal, err = mgr.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal)
	require.Error(t, discarded.Commit())
}

func TestOverlayEmptyAccountIsDeleted(t *testing.T) {
	mgr := newTestManager(t)
	owner := newTestAddress(0x09)
	addr := newTestAddress(0x03)

	ov := mgr.Begin()
	require.NoError(t, ov.PutAccount(addr, &types.Account{Lamports: 5, Owner: owner, Data: []byte{1, 2}}))
	require.NoError(t, ov.Commit())

	closing := mgr.Begin()
	require.NoError(t, closing.PutAccount(addr, &types.Account{Owner: owner}))
	got, err := closing.GetAccount(addr)
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, closing.Commit())

	got, err = mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestScanAccountsFiltersByOwner(t *testing.T) {
	mgr := newTestManager(t)
	program := newTestAddress(0xEE)

	ov := mgr.Begin()
	require.NoError(t, ov.PutAccount(newTestAddress(0x05), &types.Account{Lamports: 1, Owner: program, Data: []byte{5}}))
	require.NoError(t, ov.PutAccount(newTestAddress(0x04), &types.Account{Lamports: 1, Owner: program, Data: []byte{4}}))
	require.NoError(t, ov.Credit(newTestAddress(0x06), 10))
	require.NoError(t, ov.Commit())

	var seen []byte
	err := mgr.ScanAccounts(program, func(addr solana.PublicKey, acc *types.Account) error {
		require.Equal(t, addr[0], acc.Data[0])
		seen = append(seen, acc.Data[0])
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, seen)
}

func TestRoundAndGenesisMetadata(t *testing.T) {
	mgr := newTestManager(t)
	round, err := mgr.Round()
	require.NoError(t, err)
	require.Zero(t, round)
	require.NoError(t, mgr.SetRound(42))
	round, err = mgr.Round()
	require.NoError(t, err)
	require.Equal(t, uint64(42), round)

	alice := newTestAddress(0x01)
	require.NoError(t, mgr.ApplyGenesis(map[solana.PublicKey]uint64{alice: 1_000}))
	applied, err := mgr.GenesisApplied()
	require.NoError(t, err)
	require.True(t, applied)
	require.Error(t, mgr.ApplyGenesis(map[solana.PublicKey]uint64{alice: 1}))

	bal, err := mgr.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), bal)
}

func TestRentMinimumBalance(t *testing.T) {
	rent := types.DefaultRent()
	require.Equal(t, uint64((128+425)*3480*2), rent.MinimumBalance(425))
	require.Equal(t, uint64(128*3480*2), rent.MinimumBalance(0))
}

func TestCommitTransactionRecordsSignatureAndReceipt(t *testing.T) {
	mgr := newTestManager(t)
	var sig solana.Signature
	sig[0], sig[63] = 0xAA, 0xBB

	_, seen, err := mgr.SignatureRound(sig)
	require.NoError(t, err)
	require.False(t, seen)

	ov := mgr.Begin()
	require.NoError(t, ov.Credit(newTestAddress(0x01), 9))
	receipt := &types.Receipt{
		Signature: sig,
		Round:     12,
		Status:    types.ReceiptStatusCommitted,
		Fee:       5000,
		Events:    []types.Event{{Type: "bounty.created", Attributes: map[string]string{"id": "1"}}},
	}
	require.NoError(t, ov.CommitTransaction(receipt))

	round, seen, err := mgr.SignatureRound(sig)
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, uint64(12), round)

	got, err := mgr.Receipt(sig)
	require.NoError(t, err)
	require.Equal(t, receipt, got)

	var failedSig solana.Signature
	failedSig[1] = 1
	failed := &types.Receipt{
		Signature: failedSig,
		Round:     12,
		Status:    types.ReceiptStatusFailed,
		Error:     &types.ReceiptError{Code: 6004, Name: "UnauthorizedAccess", Message: "nope"},
	}
	require.NoError(t, mgr.PutReceipt(failed))
	_, seen, err = mgr.SignatureRound(failedSig)
	require.NoError(t, err)
	require.False(t, seen, "failed transactions are not marked as seen")
	got, err = mgr.Receipt(failedSig)
	require.NoError(t, err)
	require.Equal(t, "UnauthorizedAccess", got.Error.Name)
}
