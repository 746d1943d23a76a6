package core

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	ledgererrors "prizechain/core/errors"
	"prizechain/core/state"
	"prizechain/core/types"
	"prizechain/native/system"
)

// InstructionError attributes a failure to the instruction that raised it.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// Execution is the outcome of a transaction that may be committed.
type Execution struct {
	Fee    uint64
	Events []types.Event
}

// Runtime executes transactions against an overlay. It owns the program
// registry and enforces the account rules every program is subject to.
type Runtime struct {
	programs             map[solana.PublicKey]types.Program
	rent                 types.Rent
	lamportsPerSignature uint64
}

// NewRuntime creates a runtime with the system program registered.
func NewRuntime(rent types.Rent, lamportsPerSignature uint64) *Runtime {
	rt := &Runtime{
		programs:             make(map[solana.PublicKey]types.Program),
		rent:                 rent,
		lamportsPerSignature: lamportsPerSignature,
	}
	rt.programs[system.ProgramID] = system.Program{}
	return rt
}

// Register adds a program. Ids must be unique.
func (rt *Runtime) Register(p types.Program) error {
	if p == nil {
		return fmt.Errorf("runtime: nil program")
	}
	if _, exists := rt.programs[p.ID()]; exists {
		return fmt.Errorf("runtime: program %s already registered", p.ID())
	}
	rt.programs[p.ID()] = p
	return nil
}

// Rent returns the storage cost schedule.
func (rt *Runtime) Rent() types.Rent { return rt.rent }

// Fee returns what a transaction pays.
func (rt *Runtime) Fee(tx *types.Transaction) uint64 { return rt.lamportsPerSignature }

// Execute runs every instruction of tx against ov. On error the caller must
// discard the overlay; nothing has been committed.
func (rt *Runtime) Execute(ov *state.Overlay, tx *types.Transaction, clock int64) (*Execution, error) {
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrInvalidTransaction, err)
	}
	for i, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !tx.IsSigner(meta.PublicKey) {
				return nil, &InstructionError{Index: i, Err: fmt.Errorf("%w: %s", ledgererrors.ErrMissingSignature, meta.PublicKey)}
			}
		}
	}

	fee := rt.Fee(tx)
	if err := rt.chargeFee(ov, tx.FeePayer, fee); err != nil {
		return nil, err
	}

	exec := &Execution{Fee: fee}
	for i, ix := range tx.Instructions {
		program, ok := rt.programs[ix.ProgramID]
		if !ok {
			return nil, &InstructionError{Index: i, Err: fmt.Errorf("%w: %s", ledgererrors.ErrProgramNotFound, ix.ProgramID)}
		}
		ctx := newInvokeContext(rt, ov, tx, ix, clock)
		before, err := ctx.snapshot()
		if err != nil {
			return nil, err
		}
		if err := program.Process(ctx, ix.Accounts, ix.Data); err != nil {
			return nil, &InstructionError{Index: i, Err: err}
		}
		if err := ctx.verify(before); err != nil {
			return nil, &InstructionError{Index: i, Err: err}
		}
		exec.Events = append(exec.Events, ctx.events...)
	}
	return exec, nil
}

func (rt *Runtime) chargeFee(ov *state.Overlay, payer solana.PublicKey, fee uint64) error {
	acc, err := ov.GetAccount(payer)
	if err != nil {
		return err
	}
	if acc == nil || !acc.Owner.Equals(system.ProgramID) || acc.Lamports < fee {
		return fmt.Errorf("%w: %s", ledgererrors.ErrInsufficientFundsForFee, payer)
	}
	acc.Lamports -= fee
	return ov.PutAccount(payer, acc)
}

type declaredAccount struct {
	writable bool
	signer   bool
}

// invokeContext is the InvokeContext of one instruction.
type invokeContext struct {
	rt       *Runtime
	ov       *state.Overlay
	tx       *types.Transaction
	program  solana.PublicKey
	clock    int64
	declared map[solana.PublicKey]declaredAccount
	order    []solana.PublicKey
	events   []types.Event
}

func newInvokeContext(rt *Runtime, ov *state.Overlay, tx *types.Transaction, ix types.Instruction, clock int64) *invokeContext {
	ctx := &invokeContext{
		rt:       rt,
		ov:       ov,
		tx:       tx,
		program:  ix.ProgramID,
		clock:    clock,
		declared: make(map[solana.PublicKey]declaredAccount, len(ix.Accounts)),
	}
	for _, meta := range ix.Accounts {
		prev, seen := ctx.declared[meta.PublicKey]
		if !seen {
			ctx.order = append(ctx.order, meta.PublicKey)
		}
		ctx.declared[meta.PublicKey] = declaredAccount{
			writable: prev.writable || meta.IsWritable,
			signer:   prev.signer || meta.IsSigner,
		}
	}
	return ctx
}

func (c *invokeContext) ProgramID() solana.PublicKey { return c.program }

func (c *invokeContext) Clock() int64 { return c.clock }

func (c *invokeContext) Rent() types.Rent { return c.rt.rent }

func (c *invokeContext) Account(addr solana.PublicKey) (*types.Account, error) {
	if _, ok := c.declared[addr]; !ok {
		return nil, fmt.Errorf("%w: %s", ledgererrors.ErrAccountNotDeclared, addr)
	}
	return c.ov.GetAccount(addr)
}

func (c *invokeContext) requireWritable(addr solana.PublicKey) error {
	d, ok := c.declared[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ledgererrors.ErrAccountNotDeclared, addr)
	}
	if !d.writable {
		return fmt.Errorf("%w: %s", ledgererrors.ErrAccountNotWritable, addr)
	}
	return nil
}

func (c *invokeContext) requireSigner(addr solana.PublicKey) error {
	if d := c.declared[addr]; !d.signer || !c.tx.IsSigner(addr) {
		return fmt.Errorf("%w: %s", ledgererrors.ErrMissingSignature, addr)
	}
	return nil
}

func (c *invokeContext) owned(addr solana.PublicKey) (*types.Account, error) {
	acc, err := c.ov.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || !acc.Owner.Equals(c.program) {
		return nil, fmt.Errorf("%w: %s", ledgererrors.ErrForeignAccount, addr)
	}
	return acc, nil
}

func (c *invokeContext) WriteData(addr solana.PublicKey, data []byte) error {
	if err := c.requireWritable(addr); err != nil {
		return err
	}
	acc, err := c.owned(addr)
	if err != nil {
		return err
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("%w: %s has %d bytes, got %d", ledgererrors.ErrDataSizeChanged, addr, len(acc.Data), len(data))
	}
	acc.Data = append(acc.Data[:0], data...)
	return c.ov.PutAccount(addr, acc)
}

func (c *invokeContext) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if err := c.requireWritable(from); err != nil {
		return err
	}
	if err := c.requireSigner(from); err != nil {
		return err
	}
	if err := c.requireWritable(to); err != nil {
		return err
	}
	return system.Transfer(c.ov, from, to, lamports)
}

func (c *invokeContext) MoveLamports(from, to solana.PublicKey, lamports uint64) error {
	if err := c.requireWritable(from); err != nil {
		return err
	}
	if err := c.requireWritable(to); err != nil {
		return err
	}
	src, err := c.owned(from)
	if err != nil {
		return err
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s holds %d, moving %d", system.ErrInsufficientFunds, from, src.Lamports, lamports)
	}
	if from.Equals(to) || lamports == 0 {
		return nil
	}
	src.Lamports -= lamports
	if err := c.ov.PutAccount(from, src); err != nil {
		return err
	}
	return c.ov.Credit(to, lamports)
}

func (c *invokeContext) CreateProgramAccount(payer, addr solana.PublicKey, seeds [][]byte, space int) error {
	if err := c.requireWritable(addr); err != nil {
		return err
	}
	derived, err := solana.CreateProgramAddress(seeds, c.program)
	if err != nil || !derived.Equals(addr) {
		return fmt.Errorf("%w: %s", ledgererrors.ErrInvalidProgramAddress, addr)
	}
	existing, err := c.ov.GetAccount(addr)
	if err != nil {
		return err
	}
	if existing != nil && (len(existing.Data) > 0 || !existing.Owner.Equals(system.ProgramID)) {
		return fmt.Errorf("%w: %s", ledgererrors.ErrAccountAlreadyInUse, addr)
	}
	var have uint64
	if existing != nil {
		have = existing.Lamports
	}
	if need := c.rt.rent.MinimumBalance(space); need > have {
		if err := c.Transfer(payer, addr, need-have); err != nil {
			return err
		}
	}
	acc, err := c.ov.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Owner = c.program
	acc.Data = make([]byte, space)
	return c.ov.PutAccount(addr, acc)
}

func (c *invokeContext) CloseAccount(addr, dest solana.PublicKey) error {
	if err := c.requireWritable(addr); err != nil {
		return err
	}
	if err := c.requireWritable(dest); err != nil {
		return err
	}
	if addr.Equals(dest) {
		return fmt.Errorf("runtime: cannot close %s into itself", addr)
	}
	acc, err := c.owned(addr)
	if err != nil {
		return err
	}
	if err := c.ov.PutAccount(addr, &types.Account{}); err != nil {
		return err
	}
	return c.ov.Credit(dest, acc.Lamports)
}

func (c *invokeContext) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	c.events = append(c.events, evt.Clone())
}

// snapshot captures the declared accounts before the program runs.
func (c *invokeContext) snapshot() (map[solana.PublicKey]*types.Account, error) {
	out := make(map[solana.PublicKey]*types.Account, len(c.order))
	for _, addr := range c.order {
		acc, err := c.ov.GetAccount(addr)
		if err != nil {
			return nil, err
		}
		out[addr] = acc
	}
	return out, nil
}

// verify checks the post-conditions of one instruction: lamports are
// conserved across the declared accounts, only writable accounts changed and
// every program-owned account the instruction left behind is rent exempt.
func (c *invokeContext) verify(before map[solana.PublicKey]*types.Account) error {
	sumBefore, sumAfter := new(uint256.Int), new(uint256.Int)
	for _, addr := range c.order {
		prev := before[addr]
		next, err := c.ov.GetAccount(addr)
		if err != nil {
			return err
		}
		if prev != nil {
			sumBefore.AddUint64(sumBefore, prev.Lamports)
		}
		if next != nil {
			sumAfter.AddUint64(sumAfter, next.Lamports)
		}
		if !c.declared[addr].writable && !state.Equal(prev, next) {
			return fmt.Errorf("%w: %s changed", ledgererrors.ErrAccountNotWritable, addr)
		}
		if next != nil && !next.Owner.Equals(system.ProgramID) {
			if floor := c.rt.rent.MinimumBalance(len(next.Data)); next.Lamports < floor {
				return fmt.Errorf("%w: %s holds %d, needs %d", ledgererrors.ErrNotRentExempt, addr, next.Lamports, floor)
			}
		}
	}
	if !sumBefore.Eq(sumAfter) {
		return fmt.Errorf("%w: %s before, %s after", ledgererrors.ErrLamportsNotConserved, sumBefore.Dec(), sumAfter.Dec())
	}
	return nil
}

// receiptError converts an execution failure into its surfaced form.
func receiptError(err error) *types.ReceiptError {
	re := &types.ReceiptError{Code: 1, Name: "InternalError", Message: err.Error()}
	var ixErr *InstructionError
	if errors.As(err, &ixErr) {
		idx := ixErr.Index
		re.Instruction = &idx
	}
	var named interface {
		ErrorName() string
		ErrorCode() int
	}
	if errors.As(err, &named) {
		re.Code = named.ErrorCode()
		re.Name = named.ErrorName()
		return re
	}
	if kind, ok := ledgererrors.Classify(err); ok {
		re.Code = kind.Code
		re.Name = kind.Name
		re.Retryable = kind.Retryable
		return re
	}
	switch {
	case errors.Is(err, system.ErrInsufficientFunds):
		re.Code, re.Name = 140, "InsufficientFunds"
	case errors.Is(err, system.ErrAccountAlreadyInUse):
		re.Code, re.Name = 141, "AccountAlreadyInUse"
	case errors.Is(err, system.ErrNotSystemOwned):
		re.Code, re.Name = 142, "NotSystemOwned"
	case errors.Is(err, system.ErrInvalidInstruction):
		re.Code, re.Name = 143, "InvalidInstruction"
	}
	return re
}
