package types

import "github.com/gagliardetto/solana-go"

// InvokeContext is the view of ledger state a program receives while one
// instruction executes. Every method only accepts accounts the instruction
// declared, and writes are buffered until the whole transaction succeeds.
type InvokeContext interface {
	ProgramID() solana.PublicKey
	// Clock is the unix timestamp of the round executing the instruction.
	Clock() int64
	Rent() Rent
	// Account returns a copy of the account, or nil when it does not exist.
	Account(addr solana.PublicKey) (*Account, error)
	// WriteData replaces the data of an account owned by the program. The
	// length must not change.
	WriteData(addr solana.PublicKey, data []byte) error
	// Transfer moves lamports out of a system-owned account that signed.
	Transfer(from, to solana.PublicKey, lamports uint64) error
	// MoveLamports moves lamports out of an account owned by the program.
	MoveLamports(from, to solana.PublicKey, lamports uint64) error
	// CreateProgramAccount allocates a rent-exempt account of the given size
	// at the address derived from seeds, owned by the program and paid for by
	// payer.
	CreateProgramAccount(payer, addr solana.PublicKey, seeds [][]byte, space int) error
	// CloseAccount sends every lamport of a program-owned account to dest and
	// deletes it.
	CloseAccount(addr, dest solana.PublicKey) error
	Emit(evt *Event)
}

// Program is native code addressed by a fixed id.
type Program interface {
	ID() solana.PublicKey
	Name() string
	Process(ctx InvokeContext, accounts []AccountMeta, data []byte) error
}
