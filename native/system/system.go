package system

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
)

// ProgramID addresses the system program, the owner of every wallet.
var ProgramID = solana.SystemProgramID

var (
	ErrInsufficientFunds   = errors.New("system: insufficient funds")
	ErrAccountAlreadyInUse = errors.New("system: account already in use")
	ErrNotSystemOwned      = errors.New("system: account not owned by system program")
	ErrInvalidInstruction  = errors.New("system: invalid instruction")
)

type accountStore interface {
	GetAccount(addr solana.PublicKey) (*types.Account, error)
	PutAccount(addr solana.PublicKey, acc *types.Account) error
}

func load(st accountStore, addr solana.PublicKey) (*types.Account, error) {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewSystemAccount(0)
	}
	return acc, nil
}

// Transfer moves lamports between accounts. The source must be a wallet;
// signature checks belong to the caller.
func Transfer(st accountStore, from, to solana.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	src, err := load(st, from)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(ProgramID) {
		return fmt.Errorf("%w: %s", ErrNotSystemOwned, from)
	}
	if len(src.Data) != 0 {
		return fmt.Errorf("%w: %s carries data", ErrNotSystemOwned, from)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, src.Lamports, lamports)
	}
	if from.Equals(to) {
		return nil
	}
	dst, err := load(st, to)
	if err != nil {
		return err
	}
	if dst.Lamports+lamports < dst.Lamports {
		return fmt.Errorf("system: balance overflow for %s", to)
	}
	src.Lamports -= lamports
	dst.Lamports += lamports
	if err := st.PutAccount(from, src); err != nil {
		return err
	}
	return st.PutAccount(to, dst)
}

// CreateAccount funds addr with lamports from payer, allocates space zeroed
// bytes and assigns it to owner. The target must not exist yet.
func CreateAccount(st accountStore, payer, addr solana.PublicKey, lamports uint64, space int, owner solana.PublicKey) error {
	existing, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	if !existing.Empty() {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, addr)
	}
	if payer.Equals(addr) {
		return fmt.Errorf("%w: payer cannot fund itself", ErrAccountAlreadyInUse)
	}
	if err := Transfer(st, payer, addr, lamports); err != nil {
		return err
	}
	acc, err := load(st, addr)
	if err != nil {
		return err
	}
	acc.Owner = owner
	acc.Data = make([]byte, space)
	return st.PutAccount(addr, acc)
}

// Instruction tags, little-endian u32, matching the settlement network's
// system program numbering.
const (
	instructionTransfer uint32 = 2
)

// Program exposes Transfer as an instruction: accounts [from (w, s), to (w)].
type Program struct{}

func (Program) ID() solana.PublicKey { return ProgramID }

func (Program) Name() string { return "system" }

func (Program) Process(ctx types.InvokeContext, accounts []types.AccountMeta, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstruction
	}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case instructionTransfer:
		if len(data) != 12 || len(accounts) < 2 {
			return ErrInvalidInstruction
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		return ctx.Transfer(accounts[0].PublicKey, accounts[1].PublicKey, lamports)
	default:
		return fmt.Errorf("%w: unknown tag", ErrInvalidInstruction)
	}
}

// NewTransferInstruction builds a system transfer.
func NewTransferInstruction(from, to solana.PublicKey, lamports uint64) types.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[:4], instructionTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(from, true, true),
			types.Meta(to, true, false),
		},
		Data: data,
	}
}
