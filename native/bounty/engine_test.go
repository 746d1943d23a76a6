package bounty

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"prizechain/core/types"
	"prizechain/native/system"
)

// testContext is an in-memory InvokeContext with the same ownership rules
// the runtime enforces.
type testContext struct {
	programID solana.PublicKey
	accounts  map[solana.PublicKey]*types.Account
	clock     int64
	rent      types.Rent
	events    []*types.Event
}

func newTestContext(programID solana.PublicKey) *testContext {
	return &testContext{
		programID: programID,
		accounts:  make(map[solana.PublicKey]*types.Account),
		clock:     1_700_000_000,
		rent:      types.DefaultRent(),
	}
}

func newTestAddress(fill byte) solana.PublicKey {
	var addr solana.PublicKey
	copy(addr[:], bytes.Repeat([]byte{fill}, 32))
	return addr
}

func (c *testContext) fund(addr solana.PublicKey, lamports uint64) {
	c.accounts[addr] = types.NewSystemAccount(lamports)
}

func (c *testContext) balance(addr solana.PublicKey) uint64 {
	if acc, ok := c.accounts[addr]; ok {
		return acc.Lamports
	}
	return 0
}

func (c *testContext) snapshot() map[solana.PublicKey]*types.Account {
	out := make(map[solana.PublicKey]*types.Account, len(c.accounts))
	for k, v := range c.accounts {
		out[k] = v.Clone()
	}
	return out
}

func (c *testContext) ProgramID() solana.PublicKey { return c.programID }
func (c *testContext) Clock() int64                { return c.clock }
func (c *testContext) Rent() types.Rent            { return c.rent }

func (c *testContext) Account(addr solana.PublicKey) (*types.Account, error) {
	acc, ok := c.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

func (c *testContext) WriteData(addr solana.PublicKey, data []byte) error {
	acc, ok := c.accounts[addr]
	if !ok || !acc.Owner.Equals(c.programID) {
		return fmt.Errorf("write to foreign account %s", addr)
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("data length changed")
	}
	acc.Data = append([]byte(nil), data...)
	return nil
}

func (c *testContext) Transfer(from, to solana.PublicKey, lamports uint64) error {
	return system.Transfer(c, from, to, lamports)
}

func (c *testContext) MoveLamports(from, to solana.PublicKey, lamports uint64) error {
	src, ok := c.accounts[from]
	if !ok || !src.Owner.Equals(c.programID) || src.Lamports < lamports {
		return fmt.Errorf("cannot debit %s", from)
	}
	dst, ok := c.accounts[to]
	if !ok {
		dst = types.NewSystemAccount(0)
		c.accounts[to] = dst
	}
	src.Lamports -= lamports
	dst.Lamports += lamports
	return nil
}

func (c *testContext) CreateProgramAccount(payer, addr solana.PublicKey, seeds [][]byte, space int) error {
	derived, err := solana.CreateProgramAddress(seeds, c.programID)
	if err != nil || !derived.Equals(addr) {
		return fmt.Errorf("seeds do not derive %s", addr)
	}
	existing := c.accounts[addr]
	if existing != nil && (len(existing.Data) > 0 || !existing.Owner.Equals(system.ProgramID)) {
		return system.ErrAccountAlreadyInUse
	}
	need := c.rent.MinimumBalance(space)
	var have uint64
	if existing != nil {
		have = existing.Lamports
	}
	if need > have {
		if err := system.Transfer(c, payer, addr, need-have); err != nil {
			return err
		}
	}
	acc := c.accounts[addr]
	acc.Owner = c.programID
	acc.Data = make([]byte, space)
	return nil
}

func (c *testContext) CloseAccount(addr, dest solana.PublicKey) error {
	acc, ok := c.accounts[addr]
	if !ok || !acc.Owner.Equals(c.programID) {
		return fmt.Errorf("cannot close %s", addr)
	}
	if err := c.MoveLamports(addr, dest, acc.Lamports); err != nil {
		return err
	}
	delete(c.accounts, addr)
	return nil
}

func (c *testContext) Emit(evt *types.Event) { c.events = append(c.events, evt) }

// GetAccount, PutAccount and ScanAccounts let the context double as system
// program state and as the read-side AccountReader.
func (c *testContext) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	return c.Account(addr)
}

func (c *testContext) PutAccount(addr solana.PublicKey, acc *types.Account) error {
	if acc.Empty() {
		delete(c.accounts, addr)
		return nil
	}
	c.accounts[addr] = acc.Clone()
	return nil
}

func (c *testContext) ScanAccounts(owner solana.PublicKey, fn func(solana.PublicKey, *types.Account) error) error {
	keys := make([]solana.PublicKey, 0, len(c.accounts))
	for k := range c.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		acc := c.accounts[k]
		if !acc.Owner.Equals(owner) {
			continue
		}
		if err := fn(k, acc.Clone()); err != nil {
			return err
		}
	}
	return nil
}

const (
	testFunds  = 10_000_000_000
	halfUnit   = 500_000_000
	testIssue  = "https://github.com/acme/widgets/issues/1"
	testRepo   = "acme/widgets"
	testIssueN = 1
)

type fixture struct {
	t       *testing.T
	engine  *Engine
	ctx     *testContext
	creator solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := newTestContext(DefaultProgramID)
	f := &fixture{t: t, engine: NewEngine(DefaultProgramID), ctx: ctx, creator: newTestAddress(0x11)}
	ctx.fund(f.creator, testFunds)
	return f
}

func (f *fixture) run(ix types.Instruction, err error) error {
	f.t.Helper()
	require.NoError(f.t, err)
	return f.engine.Process(f.ctx, ix.Accounts, ix.Data)
}

func (f *fixture) initialize() {
	f.t.Helper()
	require.NoError(f.t, f.run(NewInitializeInstruction(DefaultProgramID, f.creator)))
}

func (f *fixture) createArgs(id, reward uint64) CreateArgs {
	return CreateArgs{BountyID: id, RewardAmount: reward, GithubIssueURL: testIssue, RepoName: testRepo, IssueNumber: testIssueN}
}

func (f *fixture) create(id, reward uint64) solana.PublicKey {
	f.t.Helper()
	require.NoError(f.t, f.run(NewCreateBountyInstruction(DefaultProgramID, f.creator, f.createArgs(id, reward))))
	addr, _, err := BountyAddress(DefaultProgramID, id)
	require.NoError(f.t, err)
	return addr
}

func (f *fixture) config() *ProgramConfig {
	f.t.Helper()
	cfg, _, err := NewReader(DefaultProgramID, f.ctx).GetConfig()
	require.NoError(f.t, err)
	return cfg
}

func (f *fixture) bounty(addr solana.PublicKey) *Entry {
	f.t.Helper()
	entry, err := NewReader(DefaultProgramID, f.ctx).GetBountyAt(addr)
	require.NoError(f.t, err)
	return entry
}

func requireKind(t *testing.T, err error, kind *Error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "expected %s, got %v", kind.Name, err)
}

func TestInitializeCreatesConfigOnce(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	cfg := f.config()
	require.Equal(t, f.creator, cfg.Authority)
	require.Zero(t, cfg.BountyCount)
	addr, bump, err := ConfigAddress(DefaultProgramID)
	require.NoError(t, err)
	require.Equal(t, bump, cfg.Bump)
	require.Equal(t, f.ctx.rent.MinimumBalance(ConfigSpace), f.ctx.balance(addr))
	require.Equal(t, uint64(testFunds)-f.ctx.rent.MinimumBalance(ConfigSpace), f.ctx.balance(f.creator))
	require.Len(t, f.ctx.events, 1)
	require.Equal(t, EventTypeInitialized, f.ctx.events[0].Type)

	requireKind(t, f.run(NewInitializeInstruction(DefaultProgramID, f.creator)), ErrAlreadyInitialized)
}

func TestInitializeRejectsForeignConfigAddress(t *testing.T) {
	f := newFixture(t)
	ix, err := NewInitializeInstruction(DefaultProgramID, f.creator)
	require.NoError(t, err)
	ix.Accounts[0].PublicKey = newTestAddress(0x42)
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, ix.Data), ErrAddressMismatch)

	ix, err = NewInitializeInstruction(DefaultProgramID, f.creator)
	require.NoError(t, err)
	ix.Accounts[1].IsSigner = false
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, ix.Data), ErrUnauthorizedAccess)
}

func TestCreateBountyEscrowsRewardAndIncrementsCounter(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	before := f.ctx.balance(f.creator)

	addr := f.create(1, halfUnit)

	entry := f.bounty(addr)
	rent := f.ctx.rent.MinimumBalance(BountySpace)
	require.Equal(t, rent+halfUnit, entry.Lamports)
	require.Equal(t, before-rent-halfUnit, f.ctx.balance(f.creator))
	require.Equal(t, uint64(1), f.config().BountyCount)

	b := entry.Bounty
	require.Equal(t, uint64(1), b.ID)
	require.Equal(t, f.creator, b.Creator)
	require.Equal(t, uint64(halfUnit), b.RewardAmount)
	require.Equal(t, StatusOpen, b.Status)
	require.Nil(t, b.Assignee)
	require.Nil(t, b.CompletedAt)
	require.Equal(t, f.ctx.clock, b.CreatedAt)
	require.Equal(t, testIssue, b.GithubIssueURL)
	require.Equal(t, testRepo, b.RepoName)

	last := f.ctx.events[len(f.ctx.events)-1]
	require.Equal(t, EventTypeCreated, last.Type)
	require.Equal(t, "1", last.Attributes["id"])
	require.Equal(t, "500000000", last.Attributes["reward"])
}

func TestCreateBountySequenceChecks(t *testing.T) {
	f := newFixture(t)
	requireKind(t, f.run(NewCreateBountyInstruction(DefaultProgramID, f.creator, f.createArgs(1, halfUnit))), ErrNotInitialized)

	f.initialize()
	requireKind(t, f.run(NewCreateBountyInstruction(DefaultProgramID, f.creator, f.createArgs(2, halfUnit))), ErrInvalidSequenceID)
	f.create(1, halfUnit)
	// Replaying id 1 is rejected, the counter has moved on.
	requireKind(t, f.run(NewCreateBountyInstruction(DefaultProgramID, f.creator, f.createArgs(1, halfUnit))), ErrInvalidSequenceID)
	f.create(2, halfUnit)
	require.Equal(t, uint64(2), f.config().BountyCount)
}

func TestCreateBountyRejectsSubstitutedAddress(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	ix, err := NewCreateBountyInstruction(DefaultProgramID, f.creator, f.createArgs(1, halfUnit))
	require.NoError(t, err)
	other, _, err := BountyAddress(DefaultProgramID, 7)
	require.NoError(t, err)
	ix.Accounts[0].PublicKey = other
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, ix.Data), ErrAddressMismatch)

	ix, err = NewCreateBountyInstruction(DefaultProgramID, f.creator, f.createArgs(1, halfUnit))
	require.NoError(t, err)
	ix.Accounts[1].PublicKey = newTestAddress(0x99)
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, ix.Data), ErrAddressMismatch)
	require.Zero(t, f.config().BountyCount)
}

func TestCreateBountyArgumentValidation(t *testing.T) {
	longURL := "https://github.com/acme/widgets/issues/" + string(bytes.Repeat([]byte("9"), MaxGithubIssueURLLen))
	longRepo := "acme/" + string(bytes.Repeat([]byte("w"), MaxRepoNameLen))
	cases := map[string]func(*CreateArgs){
		"zero reward":     func(a *CreateArgs) { a.RewardAmount = 0 },
		"empty url":       func(a *CreateArgs) { a.GithubIssueURL = "" },
		"url too long":    func(a *CreateArgs) { a.GithubIssueURL = longURL },
		"not http":        func(a *CreateArgs) { a.GithubIssueURL = "ftp://github.com/acme/widgets/issues/1" },
		"empty repo":      func(a *CreateArgs) { a.RepoName = "  " },
		"repo too long":   func(a *CreateArgs) { a.RepoName = longRepo },
		"repo no owner":   func(a *CreateArgs) { a.RepoName = "widgets" },
		"repo extra part": func(a *CreateArgs) { a.RepoName = "acme/widgets/x" },
		"zero issue":      func(a *CreateArgs) { a.IssueNumber = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.initialize()
			args := f.createArgs(1, halfUnit)
			mutate(&args)
			before := f.ctx.snapshot()
			requireKind(t, f.run(NewCreateBountyInstruction(DefaultProgramID, f.creator, args)), ErrInvalidArgument)
			require.Equal(t, before, f.ctx.snapshot())
		})
	}
}

func TestCreateBountyInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	poor := newTestAddress(0x22)
	rent := f.ctx.rent.MinimumBalance(BountySpace)
	// Enough for the reward but not for the storage cost on top of it.
	f.ctx.fund(poor, rent+halfUnit-1)

	ix, err := NewCreateBountyInstruction(DefaultProgramID, poor, f.createArgs(1, halfUnit))
	require.NoError(t, err)
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, ix.Data), ErrInsufficientFunds)
	require.Equal(t, rent+halfUnit-1, f.ctx.balance(poor))
	require.Zero(t, f.config().BountyCount)
}

func TestAssignBountyTransitionsToInProgress(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	addr := f.create(1, halfUnit)
	contributor := newTestAddress(0x33)

	require.NoError(t, f.run(NewAssignBountyInstruction(DefaultProgramID, addr, f.creator, contributor)))
	b := f.bounty(addr).Bounty
	require.Equal(t, StatusInProgress, b.Status)
	require.NotNil(t, b.Assignee)
	require.Equal(t, contributor, *b.Assignee)
	require.Equal(t, EventTypeAssigned, f.ctx.events[len(f.ctx.events)-1].Type)

	// Assignment happens once.
	requireKind(t, f.run(NewAssignBountyInstruction(DefaultProgramID, addr, f.creator, newTestAddress(0x34))), ErrInvalidBountyStatus)
	require.Equal(t, contributor, *f.bounty(addr).Bounty.Assignee)
}

func TestAssignBountyRejectsSelfAssignment(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	addr := f.create(1, halfUnit)
	requireKind(t, f.run(NewAssignBountyInstruction(DefaultProgramID, addr, f.creator, f.creator)), ErrInvalidArgument)
	require.Equal(t, StatusOpen, f.bounty(addr).Bounty.Status)
}

func TestNonCreatorCannotMutate(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	addr := f.create(1, halfUnit)
	intruder := newTestAddress(0x66)
	f.ctx.fund(intruder, testFunds)
	before := f.ctx.snapshot()

	attempts := map[string]func() (types.Instruction, error){
		"assign": func() (types.Instruction, error) {
			return NewAssignBountyInstruction(DefaultProgramID, addr, intruder, intruder)
		},
		"complete": func() (types.Instruction, error) {
			return NewCompleteBountyInstruction(DefaultProgramID, addr, intruder, intruder)
		},
		"cancel": func() (types.Instruction, error) {
			return NewCancelBountyInstruction(DefaultProgramID, addr, intruder)
		},
	}
	for name, build := range attempts {
		t.Run(name, func(t *testing.T) {
			requireKind(t, f.run(build()), ErrUnauthorizedAccess)
			require.Equal(t, before, f.ctx.snapshot())
		})
	}

	// Naming the real creator without its signature is no better.
	ix, err := NewCancelBountyInstruction(DefaultProgramID, addr, f.creator)
	require.NoError(t, err)
	ix.Accounts[1].IsSigner = false
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, ix.Data), ErrUnauthorizedAccess)
	require.Equal(t, StatusOpen, f.bounty(addr).Bounty.Status)
}

func TestCompleteBountyPaysRecipientAndClosesRecord(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	addr := f.create(1, halfUnit)
	contributor := newTestAddress(0x33)
	recipient := newTestAddress(0x44)
	require.NoError(t, f.run(NewAssignBountyInstruction(DefaultProgramID, addr, f.creator, contributor)))

	creatorBefore := f.ctx.balance(f.creator)
	f.ctx.clock += 3600
	require.NoError(t, f.run(NewCompleteBountyInstruction(DefaultProgramID, addr, f.creator, recipient)))

	require.Equal(t, uint64(halfUnit), f.ctx.balance(recipient))
	require.Zero(t, f.ctx.balance(contributor))
	rent := f.ctx.rent.MinimumBalance(BountySpace)
	require.Equal(t, creatorBefore+rent, f.ctx.balance(f.creator))

	_, err := NewReader(DefaultProgramID, f.ctx).GetBountyAt(addr)
	requireKind(t, err, ErrBountyNotFound)

	evt := f.ctx.events[len(f.ctx.events)-1]
	require.Equal(t, EventTypeCompleted, evt.Type)
	require.Equal(t, "completed", evt.Attributes["status"])
	require.Equal(t, recipient.String(), evt.Attributes["recipient"])
	require.Equal(t, fmt.Sprint(f.ctx.clock), evt.Attributes["completedAt"])

	requireKind(t, f.run(NewCompleteBountyInstruction(DefaultProgramID, addr, f.creator, recipient)), ErrBountyNotFound)
}

func TestCompleteOpenBountyWithoutAssignment(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	addr := f.create(1, halfUnit)
	recipient := newTestAddress(0x44)
	require.NoError(t, f.run(NewCompleteBountyInstruction(DefaultProgramID, addr, f.creator, recipient)))
	require.Equal(t, uint64(halfUnit), f.ctx.balance(recipient))
}

func TestCancelBountyRefundsCreator(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	f.create(1, halfUnit)
	addr := f.create(2, halfUnit)
	before := f.ctx.balance(f.creator)

	require.NoError(t, f.run(NewCancelBountyInstruction(DefaultProgramID, addr, f.creator)))
	refund := f.ctx.balance(f.creator) - before
	require.GreaterOrEqual(t, refund, uint64(halfUnit))
	require.Equal(t, f.ctx.rent.MinimumBalance(BountySpace)+halfUnit, refund)
	_, ok := f.ctx.accounts[addr]
	require.False(t, ok)
	require.Equal(t, uint64(2), f.config().BountyCount, "closing never rewinds the counter")

	requireKind(t, f.run(NewCancelBountyInstruction(DefaultProgramID, addr, f.creator)), ErrBountyNotFound)
}

func TestCancelInProgressBountyFails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	addr := f.create(1, halfUnit)
	require.NoError(t, f.run(NewAssignBountyInstruction(DefaultProgramID, addr, f.creator, newTestAddress(0x33))))
	for i := 0; i < 3; i++ {
		f.ctx.clock += 86_400
		requireKind(t, f.run(NewCancelBountyInstruction(DefaultProgramID, addr, f.creator)), ErrInvalidBountyStatus)
	}
	require.Equal(t, StatusInProgress, f.bounty(addr).Bounty.Status)
}

func TestForgedRecordsAreRejected(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	genuine := f.create(1, halfUnit)

	// A program-owned copy of bounty 1 at an address it was not derived for.
	forged := newTestAddress(0x77)
	f.ctx.accounts[forged] = f.ctx.accounts[genuine].Clone()
	requireKind(t, f.run(NewCancelBountyInstruction(DefaultProgramID, forged, f.creator)), ErrAddressMismatch)

	// Same bytes owned by somebody else are not a bounty at all.
	fake := newTestAddress(0x78)
	acc := f.ctx.accounts[genuine].Clone()
	acc.Owner = newTestAddress(0x01)
	f.ctx.accounts[fake] = acc
	requireKind(t, f.run(NewCancelBountyInstruction(DefaultProgramID, fake, f.creator)), ErrBountyNotFound)

	configAddr, _, err := ConfigAddress(DefaultProgramID)
	require.NoError(t, err)
	requireKind(t, f.run(NewAssignBountyInstruction(DefaultProgramID, configAddr, f.creator, newTestAddress(0x33))), ErrBountyNotFound)
}

func TestProcessRejectsMalformedInstructions(t *testing.T) {
	f := newFixture(t)
	requireKind(t, f.engine.Process(f.ctx, nil, []byte{1, 2}), ErrInvalidInstruction)
	requireKind(t, f.engine.Process(f.ctx, nil, bytes.Repeat([]byte{0xff}, 8)), ErrInvalidInstruction)

	ix, err := NewInitializeInstruction(DefaultProgramID, f.creator)
	require.NoError(t, err)
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts[:2], ix.Data), ErrInvalidInstruction)
	requireKind(t, f.engine.Process(f.ctx, ix.Accounts, append(ix.Data, 0)), ErrInvalidInstruction)
}

func TestListBountiesScansByType(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	other := newTestAddress(0x55)
	f.ctx.fund(other, testFunds)
	for id := uint64(1); id <= 4; id++ {
		creator := f.creator
		if id%2 == 0 {
			creator = other
		}
		require.NoError(t, f.run(NewCreateBountyInstruction(DefaultProgramID, creator, f.createArgs(id, halfUnit+id))))
	}
	addr3, _, err := BountyAddress(DefaultProgramID, 3)
	require.NoError(t, err)
	require.NoError(t, f.run(NewAssignBountyInstruction(DefaultProgramID, addr3, f.creator, other)))

	reader := NewReader(DefaultProgramID, f.ctx)
	all, err := reader.ListBounties(ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, entry := range all {
		require.Equal(t, uint64(i+1), entry.Bounty.ID)
	}

	byOther, err := reader.ListBounties(ListFilter{Creator: &other})
	require.NoError(t, err)
	require.Len(t, byOther, 2)
	require.Equal(t, uint64(2), byOther[0].Bounty.ID)

	inProgress := StatusInProgress
	assigned, err := reader.ListBounties(ListFilter{Status: &inProgress})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	require.Equal(t, addr3, assigned[0].Address)

	limited, err := reader.ListBounties(ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	entry, err := reader.GetBounty(3)
	require.NoError(t, err)
	require.Equal(t, addr3, entry.Address)
	next, err := reader.NextBountyID()
	require.NoError(t, err)
	require.Equal(t, uint64(5), next)
	_, err = reader.GetBounty(9)
	requireKind(t, err, ErrBountyNotFound)
}
