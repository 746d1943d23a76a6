package events

import (
	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC streams).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Committed is a program event whose transaction has committed.
type Committed struct {
	Round     uint64           `json:"round"`
	Signature solana.Signature `json:"signature"`
	Event     types.Event      `json:"event"`
}

func (c Committed) EventType() string { return c.Event.Type }

// MultiEmitter fans an event out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}
