package rpc

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/gagliardetto/solana-go"

	"prizechain/core"
	"prizechain/core/types"
	"prizechain/native/bounty"
)

const jsonRPCVersion = "2.0"

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// ErrorData accompanies ledger and program failures so clients can branch on
// the kind without parsing messages.
type ErrorData struct {
	Name        string `json:"name"`
	Detail      string `json:"detail,omitempty"`
	Retryable   bool   `json:"retryable"`
	Instruction *int   `json:"instruction,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

type BalanceResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

type AccountResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
	Data     string `json:"data"`
	Space    int    `json:"space"`
}

type RoundResult struct {
	Round                uint64 `json:"round"`
	Timestamp            int64  `json:"timestamp"`
	Committed            int    `json:"committed"`
	Failed               int    `json:"failed"`
	Digest               string `json:"digest"`
	Pending              int    `json:"pending"`
	LamportsPerSignature uint64 `json:"lamportsPerSignature"`
}

type SendResult struct {
	Signature string         `json:"signature"`
	Receipt   *types.Receipt `json:"receipt,omitempty"`
}

type ConfigResult struct {
	Address      string `json:"address"`
	Authority    string `json:"authority"`
	BountyCount  uint64 `json:"bountyCount"`
	NextBountyID uint64 `json:"nextBountyId"`
	Bump         uint8  `json:"bump"`
	ProgramID    string `json:"programId"`
}

type BountyResult struct {
	ID             uint64 `json:"id"`
	Address        string `json:"address"`
	Creator        string `json:"creator"`
	RewardAmount   uint64 `json:"rewardAmount"`
	Status         string `json:"status"`
	Assignee       string `json:"assignee,omitempty"`
	GithubIssueURL string `json:"githubIssueUrl"`
	RepoName       string `json:"repoName"`
	IssueNumber    uint64 `json:"issueNumber"`
	CreatedAt      int64  `json:"createdAt"`
	CompletedAt    *int64 `json:"completedAt,omitempty"`
	Lamports       uint64 `json:"lamports"`
	Bump           uint8  `json:"bump"`
}

type AddressResult struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// ListParams filters bounty_list.
type ListParams struct {
	Creator string `json:"creator,omitempty"`
	Status  string `json:"status,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// SendOptions is the optional second parameter of sendTransaction.
type SendOptions struct {
	// SkipWait returns as soon as the transaction is queued.
	SkipWait bool `json:"skipWait,omitempty"`
}

func accountResult(addr solana.PublicKey, acc *types.Account) *AccountResult {
	return &AccountResult{
		Address:  addr.String(),
		Lamports: acc.Lamports,
		Owner:    acc.Owner.String(),
		Data:     base64.StdEncoding.EncodeToString(acc.Data),
		Space:    len(acc.Data),
	}
}

func roundResult(summary core.RoundSummary, pending int, fee uint64) *RoundResult {
	return &RoundResult{
		Round:                summary.Round,
		Timestamp:            summary.Timestamp,
		Committed:            summary.Committed,
		Failed:               summary.Failed,
		Digest:               hex.EncodeToString(summary.Digest[:]),
		Pending:              pending,
		LamportsPerSignature: fee,
	}
}

func bountyResult(entry *bounty.Entry) *BountyResult {
	b := entry.Bounty
	out := &BountyResult{
		ID:             b.ID,
		Address:        entry.Address.String(),
		Creator:        b.Creator.String(),
		RewardAmount:   b.RewardAmount,
		Status:         b.Status.String(),
		GithubIssueURL: b.GithubIssueURL,
		RepoName:       b.RepoName,
		IssueNumber:    b.IssueNumber,
		CreatedAt:      b.CreatedAt,
		CompletedAt:    b.CompletedAt,
		Lamports:       entry.Lamports,
		Bump:           b.Bump,
	}
	if b.Assignee != nil {
		out.Assignee = b.Assignee.String()
	}
	return out
}
