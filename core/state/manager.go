package state

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
	"prizechain/storage"
)

var (
	accountPrefix   = []byte("acct/")
	signaturePrefix = []byte("sig/")
	receiptPrefix   = []byte("rcpt/")
	roundKey        = []byte("meta/round")
	genesisKey      = []byte("meta/genesis")
)

func accountKey(addr solana.PublicKey) []byte {
	return prefixed(accountPrefix, addr[:])
}

func prefixed(prefix []byte, id []byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return buf
}

// Manager reads committed ledger state and hands out overlays that stage
// writes for one atomic transaction.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// GetAccount loads an account, returning nil when it does not exist.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load account %s: %w", addr, err)
	}
	return types.DecodeAccount(raw)
}

// Balance returns the lamports held by addr (zero when missing).
func (m *Manager) Balance(addr solana.PublicKey) (uint64, error) {
	acc, err := m.GetAccount(addr)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// ScanAccounts visits every account owned by owner in address order. This is
// the only listing primitive; record types are told apart by their data.
func (m *Manager) ScanAccounts(owner solana.PublicKey, fn func(addr solana.PublicKey, acc *types.Account) error) error {
	return m.db.Iterate(accountPrefix, func(key, value []byte) error {
		acc, err := types.DecodeAccount(value)
		if err != nil {
			return err
		}
		if !acc.Owner.Equals(owner) {
			return nil
		}
		return fn(solana.PublicKeyFromBytes(key[len(accountPrefix):]), acc)
	})
}

// Round returns the last executed round number.
func (m *Manager) Round() (uint64, error) {
	raw, err := m.db.Get(roundKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: corrupt round record")
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// SetRound persists the last executed round number.
func (m *Manager) SetRound(round uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], round)
	return m.db.Put(roundKey, buf[:])
}

// GenesisApplied reports whether genesis balances were already credited.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.db.Has(genesisKey)
}

// ApplyGenesis credits the allocations and marks genesis as done in a single
// batch.
func (m *Manager) ApplyGenesis(alloc map[solana.PublicKey]uint64) error {
	applied, err := m.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("state: genesis already applied")
	}
	ov := m.Begin()
	for addr, lamports := range alloc {
		if err := ov.Credit(addr, lamports); err != nil {
			return err
		}
	}
	return ov.commit(func(b storage.Batch) { b.Put(genesisKey, []byte{1}) })
}

// SignatureRound reports the round a signature committed in.
func (m *Manager) SignatureRound(sig solana.Signature) (uint64, bool, error) {
	raw, err := m.db.Get(prefixed(signaturePrefix, sig[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("state: corrupt signature record")
	}
	return binary.LittleEndian.Uint64(raw), true, nil
}

// PutReceipt stores the receipt of a transaction that did not commit.
func (m *Manager) PutReceipt(receipt *types.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("state: encode receipt: %w", err)
	}
	return m.db.Put(prefixed(receiptPrefix, receipt.Signature[:]), raw)
}

// Receipt loads the receipt for sig, or nil when none was recorded.
func (m *Manager) Receipt(sig solana.Signature) (*types.Receipt, error) {
	raw, err := m.db.Get(prefixed(receiptPrefix, sig[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(raw, receipt); err != nil {
		return nil, fmt.Errorf("state: decode receipt: %w", err)
	}
	return receipt, nil
}

// Begin opens an overlay on top of committed state.
func (m *Manager) Begin() *Overlay {
	return &Overlay{base: m, dirty: make(map[solana.PublicKey]*types.Account)}
}

// Overlay buffers account writes for one transaction. Reads see the buffered
// writes first. Commit flushes everything in one storage batch; Discard (or
// simply dropping the overlay) leaves committed state untouched.
type Overlay struct {
	base  *Manager
	dirty map[solana.PublicKey]*types.Account
	order []solana.PublicKey
	done  bool
}

// GetAccount returns a copy of the account as seen through the overlay, or
// nil when it does not exist.
func (o *Overlay) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	if acc, ok := o.dirty[addr]; ok {
		if acc.Empty() {
			return nil, nil
		}
		return acc.Clone(), nil
	}
	return o.base.GetAccount(addr)
}

// PutAccount stages the account. Empty accounts are staged as deletions.
func (o *Overlay) PutAccount(addr solana.PublicKey, acc *types.Account) error {
	if o.done {
		return fmt.Errorf("state: overlay already finalised")
	}
	if acc == nil {
		acc = &types.Account{}
	}
	if _, ok := o.dirty[addr]; !ok {
		o.order = append(o.order, addr)
	}
	o.dirty[addr] = acc.Clone()
	return nil
}

// Credit adds lamports to addr, creating a system account when missing.
func (o *Overlay) Credit(addr solana.PublicKey, lamports uint64) error {
	acc, err := o.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = types.NewSystemAccount(0)
	}
	if acc.Lamports+lamports < acc.Lamports {
		return fmt.Errorf("state: balance overflow for %s", addr)
	}
	acc.Lamports += lamports
	return o.PutAccount(addr, acc)
}

// Touched lists the staged addresses in first-write order.
func (o *Overlay) Touched() []solana.PublicKey {
	return append([]solana.PublicKey(nil), o.order...)
}

// Commit atomically writes every staged account.
func (o *Overlay) Commit() error {
	return o.commit(nil)
}

// CommitTransaction writes the staged accounts together with the
// transaction's signature marker and receipt.
func (o *Overlay) CommitTransaction(receipt *types.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("state: encode receipt: %w", err)
	}
	var round [8]byte
	binary.LittleEndian.PutUint64(round[:], receipt.Round)
	return o.commit(func(b storage.Batch) {
		b.Put(prefixed(signaturePrefix, receipt.Signature[:]), round[:])
		b.Put(prefixed(receiptPrefix, receipt.Signature[:]), raw)
	})
}

func (o *Overlay) commit(extra func(storage.Batch)) error {
	if o.done {
		return fmt.Errorf("state: overlay already finalised")
	}
	batch := o.base.db.NewBatch()
	for _, addr := range o.order {
		acc := o.dirty[addr]
		if acc.Empty() {
			batch.Delete(accountKey(addr))
			continue
		}
		raw, err := types.EncodeAccount(acc)
		if err != nil {
			return err
		}
		batch.Put(accountKey(addr), raw)
	}
	if extra != nil {
		extra(batch)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	o.done = true
	return nil
}

// Discard drops every staged write.
func (o *Overlay) Discard() {
	o.dirty = make(map[solana.PublicKey]*types.Account)
	o.order = nil
	o.done = true
}

// Equal reports whether two accounts hold the same lamports, owner and data.
func Equal(a, b *types.Account) bool {
	if a.Empty() || b.Empty() {
		return a.Empty() == b.Empty()
	}
	return a.Lamports == b.Lamports && a.Owner.Equals(b.Owner) && bytes.Equal(a.Data, b.Data)
}
