package bounty

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Status is the lifecycle state of a bounty. It is stored as a single byte.
type Status uint8

const (
	StatusOpen Status = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s <= StatusCancelled
}

// ParseStatus accepts the names produced by String.
func ParseStatus(v string) (Status, error) {
	for s := StatusOpen; s <= StatusCancelled; s++ {
		if s.String() == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown bounty status %q", v)
}

// ProgramConfig is the singleton sequence record stored at ConfigAddress.
type ProgramConfig struct {
	Authority   solana.PublicKey
	BountyCount uint64
	Bump        uint8
}

// Bounty is one escrow stored at BountyAddress(ID). While the bounty is open
// or in progress its account holds the rent-exempt minimum plus exactly
// RewardAmount lamports.
type Bounty struct {
	ID             uint64
	Creator        solana.PublicKey
	RewardAmount   uint64
	Status         Status
	Assignee       *solana.PublicKey
	GithubIssueURL string
	RepoName       string
	IssueNumber    uint64
	CreatedAt      int64
	CompletedAt    *int64
	Bump           uint8
}

// Clone returns a deep copy.
func (b *Bounty) Clone() *Bounty {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Assignee != nil {
		assignee := *b.Assignee
		clone.Assignee = &assignee
	}
	if b.CompletedAt != nil {
		completed := *b.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

// Active reports whether the bounty still holds its reward in custody.
func (b *Bounty) Active() bool {
	return b.Status == StatusOpen || b.Status == StatusInProgress
}
