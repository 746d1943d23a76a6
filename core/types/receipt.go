package types

import "github.com/gagliardetto/solana-go"

// ReceiptStatus reports whether a transaction committed.
type ReceiptStatus string

const (
	ReceiptStatusCommitted ReceiptStatus = "committed"
	ReceiptStatusFailed    ReceiptStatus = "failed"
)

// ReceiptError surfaces the failure kind verbatim so callers can tell one
// rejection from another.
type ReceiptError struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Message     string `json:"message"`
	Instruction *int   `json:"instruction,omitempty"`
	Retryable   bool   `json:"retryable"`
}

// Receipt records the outcome of one transaction.
type Receipt struct {
	Signature solana.Signature `json:"signature"`
	Round     uint64           `json:"round"`
	Status    ReceiptStatus    `json:"status"`
	Fee       uint64           `json:"fee"`
	Error     *ReceiptError    `json:"error,omitempty"`
	Events    []Event          `json:"events,omitempty"`
}

// Committed reports whether the transaction applied.
func (r *Receipt) Committed() bool {
	return r != nil && r.Status == ReceiptStatusCommitted
}
