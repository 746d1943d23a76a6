package errors

import stderrors "errors"

var (
	ErrAccountInUse         = stderrors.New("ledger: account written by an earlier transaction in this round")
	ErrTransactionExpired   = stderrors.New("ledger: recent round is outside the transaction age window")
	ErrRecentRoundAhead     = stderrors.New("ledger: recent round has not been executed yet")
	ErrDuplicateTransaction = stderrors.New("ledger: transaction already committed")
	ErrPoolFull             = stderrors.New("ledger: pending pool full")
	ErrInvalidTransaction   = stderrors.New("ledger: invalid transaction")

	ErrProgramNotFound         = stderrors.New("runtime: program not found")
	ErrAccountNotDeclared      = stderrors.New("runtime: account not declared by instruction")
	ErrAccountNotWritable      = stderrors.New("runtime: account not declared writable")
	ErrMissingSignature        = stderrors.New("runtime: required signature missing")
	ErrInsufficientFundsForFee = stderrors.New("runtime: insufficient funds for fee")
	ErrForeignAccount          = stderrors.New("runtime: account not owned by program")
	ErrDataSizeChanged         = stderrors.New("runtime: account data size changed")
	ErrNotRentExempt           = stderrors.New("runtime: account would not be rent exempt")
	ErrLamportsNotConserved    = stderrors.New("runtime: lamports not conserved")
	ErrInvalidProgramAddress   = stderrors.New("runtime: seeds do not derive account address")
	ErrAccountAlreadyInUse     = stderrors.New("runtime: account already allocated")

	ErrAirdropDisabled = stderrors.New("ledger: airdrop disabled")
	ErrAirdropLimit    = stderrors.New("ledger: airdrop exceeds limit")
)

// Kind describes how a ledger failure is surfaced to callers.
type Kind struct {
	Err       error
	Code      int
	Name      string
	Retryable bool
}

var kinds = []Kind{
	{ErrAccountInUse, 100, "AccountInUse", true},
	{ErrTransactionExpired, 101, "TransactionExpired", false},
	{ErrRecentRoundAhead, 102, "RecentRoundAhead", true},
	{ErrDuplicateTransaction, 103, "DuplicateTransaction", false},
	{ErrPoolFull, 104, "PoolFull", true},
	{ErrInvalidTransaction, 105, "InvalidTransaction", false},
	{ErrProgramNotFound, 110, "ProgramNotFound", false},
	{ErrAccountNotDeclared, 111, "AccountNotDeclared", false},
	{ErrAccountNotWritable, 112, "AccountNotWritable", false},
	{ErrMissingSignature, 113, "MissingSignature", false},
	{ErrInsufficientFundsForFee, 114, "InsufficientFundsForFee", false},
	{ErrForeignAccount, 115, "ForeignAccount", false},
	{ErrDataSizeChanged, 116, "DataSizeChanged", false},
	{ErrNotRentExempt, 117, "NotRentExempt", false},
	{ErrLamportsNotConserved, 118, "LamportsNotConserved", false},
	{ErrInvalidProgramAddress, 119, "InvalidProgramAddress", false},
	{ErrAccountAlreadyInUse, 120, "AccountAlreadyInUse", false},
	{ErrAirdropDisabled, 130, "AirdropDisabled", false},
	{ErrAirdropLimit, 131, "AirdropLimit", false},
}

// Classify finds the ledger kind err wraps.
func Classify(err error) (Kind, bool) {
	for _, k := range kinds {
		if stderrors.Is(err, k.Err) {
			return k, true
		}
	}
	return Kind{}, false
}

// ByName resolves a kind from its surfaced name.
func ByName(name string) (Kind, bool) {
	for _, k := range kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}
