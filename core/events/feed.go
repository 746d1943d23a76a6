package events

import "sync"

// Feed is an Emitter that hands every event to each live subscriber.
// Subscribers that fall behind lose events rather than stall the emitter.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewFeed creates a feed whose subscriptions buffer up to buffer events.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and must be called once the subscriber is done.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan Event, f.buffer)
	f.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}

// Emit implements Emitter.
func (f *Feed) Emit(evt Event) {
	if evt == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
