package mempool

import (
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
)

var (
	ErrPoolFull  = errors.New("mempool: pool full")
	ErrDuplicate = errors.New("mempool: transaction already pending")
)

// Pool is a bounded FIFO of signed transactions waiting for a round. A
// signature can be pending at most once.
type Pool struct {
	mu      sync.Mutex
	limit   int
	queue   []*types.Transaction
	pending map[solana.Signature]struct{}
}

// New creates a pool holding at most limit transactions. A non-positive
// limit means unbounded.
func New(limit int) *Pool {
	return &Pool{limit: limit, pending: make(map[solana.Signature]struct{})}
}

// Add enqueues tx.
func (p *Pool) Add(tx *types.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.pending[tx.Signature]; dup {
		return ErrDuplicate
	}
	if p.limit > 0 && len(p.queue) >= p.limit {
		return ErrPoolFull
	}
	p.pending[tx.Signature] = struct{}{}
	p.queue = append(p.queue, tx)
	return nil
}

// Take removes up to max transactions in arrival order. A non-positive max
// drains the pool.
func (p *Pool) Take(max int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	if max > 0 && max < n {
		n = max
	}
	out := make([]*types.Transaction, n)
	copy(out, p.queue[:n])
	p.queue = append(p.queue[:0], p.queue[n:]...)
	for _, tx := range out {
		delete(p.pending, tx.Signature)
	}
	return out
}

// Contains reports whether sig is pending.
func (p *Pool) Contains(sig solana.Signature) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[sig]
	return ok
}

// Len reports the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
