package bounty

import (
	"errors"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
	"prizechain/native/system"
	"prizechain/observability/metrics"
)

// Engine executes the bounty instructions. It keeps no state of its own:
// every precondition is evaluated against the accounts handed in by the
// runtime for the current transaction, and every handler validates fully
// before its first write.
type Engine struct {
	programID solana.PublicKey
	logger    *slog.Logger
}

// NewEngine creates the program bound to programID.
func NewEngine(programID solana.PublicKey) *Engine {
	return &Engine{programID: programID, logger: slog.Default()}
}

// SetLogger overrides the logger. Passing nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) ID() solana.PublicKey { return e.programID }

func (e *Engine) Name() string { return "bounty" }

// Process dispatches one instruction.
func (e *Engine) Process(ctx types.InvokeContext, accounts []types.AccountMeta, data []byte) (err error) {
	name, args, err := decodeInstruction(data)
	if err != nil {
		metrics.Bounty().ObserveInstruction("unknown", err)
		return err
	}
	defer func() { metrics.Bounty().ObserveInstruction(name, err) }()

	switch name {
	case OpInitialize:
		if err := requireNoArgs(name, args); err != nil {
			return err
		}
		return e.initialize(ctx, accounts)
	case OpCreate:
		parsed, err := decodeCreateArgs(args)
		if err != nil {
			return err
		}
		return e.createBounty(ctx, accounts, parsed)
	case OpAssign:
		if err := requireNoArgs(name, args); err != nil {
			return err
		}
		return e.assignBounty(ctx, accounts)
	case OpComplete:
		if err := requireNoArgs(name, args); err != nil {
			return err
		}
		return e.completeBounty(ctx, accounts)
	case OpCancel:
		if err := requireNoArgs(name, args); err != nil {
			return err
		}
		return e.cancelBounty(ctx, accounts)
	default:
		return fail(ErrInvalidInstruction, "unhandled instruction %s", name)
	}
}

func requireSigner(meta types.AccountMeta, role string) error {
	if !meta.IsSigner {
		return fail(ErrUnauthorizedAccess, "%s %s did not sign", role, meta.PublicKey)
	}
	return nil
}

func requireSystemProgram(meta types.AccountMeta) error {
	if !meta.PublicKey.Equals(system.ProgramID) {
		return fail(ErrInvalidInstruction, "expected system program, got %s", meta.PublicKey)
	}
	return nil
}

func (e *Engine) initialize(ctx types.InvokeContext, accounts []types.AccountMeta) error {
	if err := requireAccounts(OpInitialize, accounts, 3); err != nil {
		return err
	}
	configMeta, authority := accounts[0], accounts[1]
	if err := requireSigner(authority, "authority"); err != nil {
		return err
	}
	if err := requireSystemProgram(accounts[2]); err != nil {
		return err
	}
	configAddr, bump, err := ConfigAddress(e.programID)
	if err != nil {
		return err
	}
	if !configMeta.PublicKey.Equals(configAddr) {
		return fail(ErrAddressMismatch, "config expected at %s, got %s", configAddr, configMeta.PublicKey)
	}
	existing, err := ctx.Account(configAddr)
	if err != nil {
		return err
	}
	if existing != nil && len(existing.Data) > 0 {
		return fail(ErrAlreadyInitialized, "config at %s", configAddr)
	}
	if err := e.requireFunds(ctx, authority.PublicKey, e.allocationCost(ctx, existing, ConfigSpace)); err != nil {
		return err
	}

	cfg := &ProgramConfig{Authority: authority.PublicKey, BountyCount: 0, Bump: bump}
	data, err := EncodeConfig(cfg)
	if err != nil {
		return err
	}
	if err := ctx.CreateProgramAccount(authority.PublicKey, configAddr, withBump(ConfigSeeds(), bump), ConfigSpace); err != nil {
		return err
	}
	if err := ctx.WriteData(configAddr, data); err != nil {
		return err
	}
	ctx.Emit(NewInitializedEvent(configAddr, cfg))
	e.logger.Info("bounty program initialized", slog.String("authority", authority.PublicKey.String()))
	return nil
}

func (e *Engine) createBounty(ctx types.InvokeContext, accounts []types.AccountMeta, args CreateArgs) error {
	if err := ValidateCreateArgs(args); err != nil {
		return err
	}
	if err := requireAccounts(OpCreate, accounts, 4); err != nil {
		return err
	}
	bountyMeta, configMeta, creator := accounts[0], accounts[1], accounts[2]
	if err := requireSigner(creator, "creator"); err != nil {
		return err
	}
	if err := requireSystemProgram(accounts[3]); err != nil {
		return err
	}

	cfg, err := e.loadConfig(ctx, configMeta.PublicKey)
	if err != nil {
		return err
	}
	if cfg.BountyCount == ^uint64(0) || args.BountyID != cfg.BountyCount+1 {
		return fail(ErrInvalidSequenceID, "got %d, expected %d", args.BountyID, cfg.BountyCount+1)
	}
	bountyAddr, bump, err := BountyAddress(e.programID, args.BountyID)
	if err != nil {
		return err
	}
	if !bountyMeta.PublicKey.Equals(bountyAddr) {
		return fail(ErrAddressMismatch, "bounty %d expected at %s, got %s", args.BountyID, bountyAddr, bountyMeta.PublicKey)
	}
	if creator.PublicKey.Equals(bountyAddr) {
		return fail(ErrInvalidArgument, "creator cannot be the bounty account")
	}
	existing, err := ctx.Account(bountyAddr)
	if err != nil {
		return err
	}
	if existing != nil && len(existing.Data) > 0 {
		return fail(ErrInvalidSequenceID, "bounty %d already exists", args.BountyID)
	}
	cost := e.allocationCost(ctx, existing, BountySpace)
	if cost+args.RewardAmount < cost {
		return fail(ErrInvalidArgument, "reward amount overflows")
	}
	if err := e.requireFunds(ctx, creator.PublicKey, cost+args.RewardAmount); err != nil {
		return err
	}

	record := &Bounty{
		ID:             args.BountyID,
		Creator:        creator.PublicKey,
		RewardAmount:   args.RewardAmount,
		Status:         StatusOpen,
		GithubIssueURL: args.GithubIssueURL,
		RepoName:       args.RepoName,
		IssueNumber:    args.IssueNumber,
		CreatedAt:      ctx.Clock(),
		Bump:           bump,
	}
	recordData, err := EncodeBounty(record)
	if err != nil {
		return err
	}
	cfg.BountyCount++
	configData, err := EncodeConfig(cfg)
	if err != nil {
		return err
	}

	if err := ctx.CreateProgramAccount(creator.PublicKey, bountyAddr, withBump(BountySeeds(args.BountyID), bump), BountySpace); err != nil {
		return err
	}
	if err := ctx.Transfer(creator.PublicKey, bountyAddr, args.RewardAmount); err != nil {
		return err
	}
	if err := ctx.WriteData(bountyAddr, recordData); err != nil {
		return err
	}
	if err := ctx.WriteData(configMeta.PublicKey, configData); err != nil {
		return err
	}
	ctx.Emit(NewCreatedEvent(bountyAddr, record))
	e.logger.Info("bounty created",
		slog.Uint64("id", record.ID),
		slog.Uint64("reward", record.RewardAmount),
		slog.String("issue", record.GithubIssueURL))
	return nil
}

func (e *Engine) assignBounty(ctx types.InvokeContext, accounts []types.AccountMeta) error {
	if err := requireAccounts(OpAssign, accounts, 3); err != nil {
		return err
	}
	bountyMeta, creator, assignee := accounts[0], accounts[1], accounts[2]
	record, err := e.loadBounty(ctx, bountyMeta.PublicKey)
	if err != nil {
		return err
	}
	if err := e.requireCreator(record, creator); err != nil {
		return err
	}
	if record.Status != StatusOpen {
		return fail(ErrInvalidBountyStatus, "cannot assign a %s bounty", record.Status)
	}
	if assignee.PublicKey.Equals(record.Creator) {
		return fail(ErrInvalidArgument, "creator cannot assign the bounty to itself")
	}
	if assignee.PublicKey.IsZero() || assignee.PublicKey.Equals(bountyMeta.PublicKey) {
		return fail(ErrInvalidArgument, "invalid assignee %s", assignee.PublicKey)
	}

	updated := record.Clone()
	contributor := assignee.PublicKey
	updated.Assignee = &contributor
	updated.Status = StatusInProgress
	data, err := EncodeBounty(updated)
	if err != nil {
		return err
	}
	if err := ctx.WriteData(bountyMeta.PublicKey, data); err != nil {
		return err
	}
	ctx.Emit(NewAssignedEvent(bountyMeta.PublicKey, updated))
	e.logger.Info("bounty assigned", slog.Uint64("id", updated.ID), slog.String("assignee", contributor.String()))
	return nil
}

func (e *Engine) completeBounty(ctx types.InvokeContext, accounts []types.AccountMeta) error {
	if err := requireAccounts(OpComplete, accounts, 4); err != nil {
		return err
	}
	bountyMeta, creator, recipient := accounts[0], accounts[1], accounts[2]
	if err := requireSystemProgram(accounts[3]); err != nil {
		return err
	}
	record, err := e.loadBounty(ctx, bountyMeta.PublicKey)
	if err != nil {
		return err
	}
	if err := e.requireCreator(record, creator); err != nil {
		return err
	}
	if !record.Active() {
		return fail(ErrInvalidBountyStatus, "cannot complete a %s bounty", record.Status)
	}
	if recipient.PublicKey.IsZero() || recipient.PublicKey.Equals(bountyMeta.PublicKey) {
		return fail(ErrInvalidArgument, "invalid recipient %s", recipient.PublicKey)
	}
	custody, err := e.custody(ctx, bountyMeta.PublicKey, record)
	if err != nil {
		return err
	}

	closed := record.Clone()
	now := ctx.Clock()
	closed.CompletedAt = &now
	closed.Status = StatusCompleted
	if err := ctx.MoveLamports(bountyMeta.PublicKey, recipient.PublicKey, record.RewardAmount); err != nil {
		return err
	}
	if err := ctx.CloseAccount(bountyMeta.PublicKey, creator.PublicKey); err != nil {
		return err
	}
	ctx.Emit(NewCompletedEvent(bountyMeta.PublicKey, closed, recipient.PublicKey, custody.Lamports-record.RewardAmount))
	e.logger.Info("bounty completed",
		slog.Uint64("id", closed.ID),
		slog.Uint64("reward", closed.RewardAmount),
		slog.String("recipient", recipient.PublicKey.String()))
	return nil
}

func (e *Engine) cancelBounty(ctx types.InvokeContext, accounts []types.AccountMeta) error {
	if err := requireAccounts(OpCancel, accounts, 3); err != nil {
		return err
	}
	bountyMeta, creator := accounts[0], accounts[1]
	if err := requireSystemProgram(accounts[2]); err != nil {
		return err
	}
	record, err := e.loadBounty(ctx, bountyMeta.PublicKey)
	if err != nil {
		return err
	}
	if err := e.requireCreator(record, creator); err != nil {
		return err
	}
	if record.Status != StatusOpen {
		return fail(ErrInvalidBountyStatus, "cannot cancel a %s bounty", record.Status)
	}
	custody, err := e.custody(ctx, bountyMeta.PublicKey, record)
	if err != nil {
		return err
	}

	cancelled := record.Clone()
	cancelled.Status = StatusCancelled
	if err := ctx.CloseAccount(bountyMeta.PublicKey, creator.PublicKey); err != nil {
		return err
	}
	ctx.Emit(NewCancelledEvent(bountyMeta.PublicKey, cancelled, custody.Lamports))
	e.logger.Info("bounty cancelled", slog.Uint64("id", cancelled.ID), slog.Uint64("refund", custody.Lamports))
	return nil
}

// requireCreator authenticates the caller as the stored creator.
func (e *Engine) requireCreator(record *Bounty, creator types.AccountMeta) error {
	if !creator.PublicKey.Equals(record.Creator) {
		return fail(ErrUnauthorizedAccess, "%s is not the creator of bounty %d", creator.PublicKey, record.ID)
	}
	return requireSigner(creator, "creator")
}

func (e *Engine) loadConfig(ctx types.InvokeContext, addr solana.PublicKey) (*ProgramConfig, error) {
	acc, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || !acc.Owner.Equals(e.programID) || !IsConfigData(acc.Data) {
		configAddr, _, derr := ConfigAddress(e.programID)
		if derr == nil && !configAddr.Equals(addr) {
			return nil, fail(ErrAddressMismatch, "config expected at %s, got %s", configAddr, addr)
		}
		return nil, fail(ErrNotInitialized, "no program config at %s", addr)
	}
	cfg, err := DecodeConfig(acc.Data)
	if err != nil {
		return nil, err
	}
	if err := verifyAddress(e.programID, ConfigSeeds(), cfg.Bump, addr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBounty reads the record at addr and re-derives its address from the
// stored id and bump.
func (e *Engine) loadBounty(ctx types.InvokeContext, addr solana.PublicKey) (*Bounty, error) {
	acc, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	return decodeOwnedBounty(e.programID, addr, acc)
}

func decodeOwnedBounty(programID, addr solana.PublicKey, acc *types.Account) (*Bounty, error) {
	if acc == nil {
		return nil, fail(ErrBountyNotFound, "no account at %s", addr)
	}
	if !acc.Owner.Equals(programID) || !IsBountyData(acc.Data) {
		return nil, fail(ErrBountyNotFound, "%s is not a bounty record", addr)
	}
	record, err := DecodeBounty(acc.Data)
	if err != nil {
		return nil, err
	}
	if err := verifyAddress(programID, BountySeeds(record.ID), record.Bump, addr); err != nil {
		return nil, err
	}
	return record, nil
}

// custody checks that the record still holds its reward on top of the
// rent-exempt minimum.
func (e *Engine) custody(ctx types.InvokeContext, addr solana.PublicKey, record *Bounty) (*types.Account, error) {
	acc, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	floor := ctx.Rent().MinimumBalance(len(acc.Data))
	if acc.Lamports < floor || acc.Lamports-floor < record.RewardAmount {
		return nil, fail(ErrInsufficientFunds, "bounty %d holds %d lamports, reward is %d", record.ID, acc.Lamports, record.RewardAmount)
	}
	return acc, nil
}

// allocationCost is what the payer must add so that a new record of space
// bytes is rent-exempt, counting lamports already sent to the address.
func (e *Engine) allocationCost(ctx types.InvokeContext, existing *types.Account, space int) uint64 {
	need := ctx.Rent().MinimumBalance(space)
	if existing != nil {
		if existing.Lamports >= need {
			return 0
		}
		need -= existing.Lamports
	}
	return need
}

func (e *Engine) requireFunds(ctx types.InvokeContext, payer solana.PublicKey, amount uint64) error {
	acc, err := ctx.Account(payer)
	if err != nil {
		return err
	}
	var balance uint64
	if acc != nil {
		balance = acc.Lamports
	}
	if balance < amount {
		return fail(ErrInsufficientFunds, "%s holds %d lamports, needs %d", payer, balance, amount)
	}
	return nil
}

// IsRetryable reports whether a failed create can succeed after refreshing
// the sequence counter.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInvalidSequenceID)
}

var _ types.Program = (*Engine)(nil)
