package bus

import (
	"sync"
	"sync/atomic"
)

// MemoryBus is an in-process MessageBus. It is what runs when no NATS URL
// is configured, and what tests use.
type MemoryBus struct {
	size    int
	dropped atomic.Uint64

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*memorySub
	closed bool
}

type memorySub struct {
	*queue
	id      uint64
	pattern string
	bus     *MemoryBus
}

func NewMemoryBus(cfg Config) *MemoryBus {
	return &MemoryBus{size: cfg.buffer(), subs: make(map[uint64]*memorySub)}
}

// Publish offers the message to every matching subscriber; full queues
// miss it and count towards Dropped.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := &Message{Subject: subject, Data: data}
	for _, sub := range b.subs {
		if Match(sub.pattern, subject) {
			sub.offer(msg)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	sub := &memorySub{
		queue:   newQueue(b.size, func() { b.dropped.Add(1) }),
		id:      b.nextID,
		pattern: subject,
		bus:     b,
	}
	b.subs[sub.id] = sub
	return sub, nil
}

// Dropped counts deliveries lost to full subscriber queues.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every subscription. Closing twice is a no-op.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.close()
		delete(b.subs, id)
	}
	return nil
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.close()
	return nil
}
