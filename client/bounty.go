package client

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
	"prizechain/native/bounty"
	"prizechain/native/system"
	"prizechain/rpc"
)

// CreateParams describes a new bounty. The id is assigned at submission.
type CreateParams struct {
	RewardAmount   uint64
	GithubIssueURL string
	RepoName       string
	IssueNumber    uint64
}

// Wallet signs and submits transactions on behalf of one key.
type Wallet struct {
	client    *Client
	key       solana.PrivateKey
	programID solana.PublicKey

	attempts uint
	delay    time.Duration
}

// WalletOption customises a Wallet.
type WalletOption func(*Wallet)

// WithProgramID targets a bounty program deployed at a non-default address.
func WithProgramID(id solana.PublicKey) WalletOption {
	return func(w *Wallet) { w.programID = id }
}

// WithRetry bounds how often a create is rebuilt after a retryable failure.
func WithRetry(attempts uint, delay time.Duration) WalletOption {
	return func(w *Wallet) {
		w.attempts = attempts
		w.delay = delay
	}
}

func NewWallet(c *Client, key solana.PrivateKey, opts ...WalletOption) *Wallet {
	w := &Wallet{
		client:    c,
		key:       key,
		programID: bounty.DefaultProgramID,
		attempts:  5,
		delay:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wallet) Address() solana.PublicKey { return w.key.PublicKey() }

// Send builds a transaction from ixs against the node's current round, signs
// it and waits for execution.
func (w *Wallet) Send(ctx context.Context, ixs ...types.Instruction) (*rpc.SendResult, error) {
	round, err := w.client.Round(ctx)
	if err != nil {
		return nil, err
	}
	tx := types.NewTransaction(w.Address(), round.Round, ixs...)
	if err := tx.Sign(w.key); err != nil {
		return nil, err
	}
	return w.client.SendTransaction(ctx, tx, false)
}

func (w *Wallet) Transfer(ctx context.Context, to solana.PublicKey, lamports uint64) (*rpc.SendResult, error) {
	return w.Send(ctx, system.NewTransferInstruction(w.Address(), to, lamports))
}

// Initialize creates the program config with this wallet as authority.
func (w *Wallet) Initialize(ctx context.Context) (*rpc.SendResult, error) {
	ix, err := bounty.NewInitializeInstruction(w.programID, w.Address())
	if err != nil {
		return nil, err
	}
	return w.Send(ctx, ix)
}

// CreateBounty escrows a reward under the next free id. Losing the race for
// an id to a concurrent creator is retried with a fresh id and round.
func (w *Wallet) CreateBounty(ctx context.Context, params CreateParams) (uint64, *rpc.SendResult, error) {
	var (
		id     uint64
		result *rpc.SendResult
	)
	err := retry.Do(
		func() error {
			cfg, err := w.client.BountyConfig(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			ix, err := bounty.NewCreateBountyInstruction(w.programID, w.Address(), bounty.CreateArgs{
				BountyID:       cfg.NextBountyID,
				RewardAmount:   params.RewardAmount,
				GithubIssueURL: params.GithubIssueURL,
				RepoName:       params.RepoName,
				IssueNumber:    params.IssueNumber,
			})
			if err != nil {
				return retry.Unrecoverable(err)
			}
			res, err := w.Send(ctx, ix)
			if err != nil {
				if IsRetryable(err) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			id, result = cfg.NextBountyID, res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(w.attempts),
		retry.Delay(w.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, nil, err
	}
	return id, result, nil
}

func (w *Wallet) AssignBounty(ctx context.Context, id uint64, assignee solana.PublicKey) (*rpc.SendResult, error) {
	addr, err := w.bountyAddress(id)
	if err != nil {
		return nil, err
	}
	ix, err := bounty.NewAssignBountyInstruction(w.programID, addr, w.Address(), assignee)
	if err != nil {
		return nil, err
	}
	return w.Send(ctx, ix)
}

// CompleteBounty pays the reward to recipient and closes the record.
func (w *Wallet) CompleteBounty(ctx context.Context, id uint64, recipient solana.PublicKey) (*rpc.SendResult, error) {
	addr, err := w.bountyAddress(id)
	if err != nil {
		return nil, err
	}
	ix, err := bounty.NewCompleteBountyInstruction(w.programID, addr, w.Address(), recipient)
	if err != nil {
		return nil, err
	}
	return w.Send(ctx, ix)
}

func (w *Wallet) CancelBounty(ctx context.Context, id uint64) (*rpc.SendResult, error) {
	addr, err := w.bountyAddress(id)
	if err != nil {
		return nil, err
	}
	ix, err := bounty.NewCancelBountyInstruction(w.programID, addr, w.Address())
	if err != nil {
		return nil, err
	}
	return w.Send(ctx, ix)
}

func (w *Wallet) bountyAddress(id uint64) (solana.PublicKey, error) {
	addr, _, err := bounty.BountyAddress(w.programID, id)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive bounty %d: %w", id, err)
	}
	return addr, nil
}
