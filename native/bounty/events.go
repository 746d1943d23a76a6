package bounty

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
)

const (
	EventTypeInitialized = "bounty.initialized"
	EventTypeCreated     = "bounty.created"
	EventTypeAssigned    = "bounty.assigned"
	EventTypeCompleted   = "bounty.completed"
	EventTypeCancelled   = "bounty.cancelled"
)

// NewInitializedEvent is emitted once when the program config is allocated.
func NewInitializedEvent(addr solana.PublicKey, cfg *ProgramConfig) *types.Event {
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"address":   addr.String(),
			"authority": cfg.Authority.String(),
		},
	}
}

// NewCreatedEvent returns the canonical payload for a funded bounty.
func NewCreatedEvent(addr solana.PublicKey, b *Bounty) *types.Event {
	evt := newBountyEvent(EventTypeCreated, addr, b)
	evt.Attributes["url"] = b.GithubIssueURL
	evt.Attributes["repo"] = b.RepoName
	evt.Attributes["issue"] = strconv.FormatUint(b.IssueNumber, 10)
	return evt
}

// NewAssignedEvent returns the canonical payload for an assignment.
func NewAssignedEvent(addr solana.PublicKey, b *Bounty) *types.Event {
	return newBountyEvent(EventTypeAssigned, addr, b)
}

// NewCompletedEvent returns the canonical payload for a release to recipient.
func NewCompletedEvent(addr solana.PublicKey, b *Bounty, recipient solana.PublicKey, reclaimed uint64) *types.Event {
	evt := newBountyEvent(EventTypeCompleted, addr, b)
	evt.Attributes["recipient"] = recipient.String()
	evt.Attributes["reclaimed"] = strconv.FormatUint(reclaimed, 10)
	return evt
}

// NewCancelledEvent returns the canonical payload for a refund to the creator.
func NewCancelledEvent(addr solana.PublicKey, b *Bounty, refund uint64) *types.Event {
	evt := newBountyEvent(EventTypeCancelled, addr, b)
	evt.Attributes["refund"] = strconv.FormatUint(refund, 10)
	return evt
}

func newBountyEvent(eventType string, addr solana.PublicKey, b *Bounty) *types.Event {
	attrs := map[string]string{
		"id":      strconv.FormatUint(b.ID, 10),
		"address": addr.String(),
		"creator": b.Creator.String(),
		"reward":  strconv.FormatUint(b.RewardAmount, 10),
		"status":  b.Status.String(),
	}
	if b.Assignee != nil {
		attrs["assignee"] = b.Assignee.String()
	}
	if b.CompletedAt != nil {
		attrs["completedAt"] = strconv.FormatInt(*b.CompletedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
