package bus

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message is one delivery: the concrete subject it was published on and
// the raw payload.
type Message struct {
	Subject string
	Data    []byte
}

// MessageBus is fire-and-forget pub/sub. Alerts and heartbeat mirrors
// travel over it; nothing in the engine waits for a reply.
type MessageBus interface {
	Publish(subject string, data []byte) error

	// Subscribe accepts NATS wildcards: "*" matches one token and a
	// trailing ">" matches one or more.
	Subscribe(subject string) (Subscription, error)

	Close() error
}

// Subscription delivers messages until Unsubscribe or the bus closes,
// after which Messages is closed.
type Subscription interface {
	Messages() <-chan *Message
	Unsubscribe() error
}

// Config is shared by both bus implementations.
type Config struct {
	// BufferSize is the per-subscription queue. A slow subscriber loses
	// messages once it fills. Default 256.
	BufferSize int
}

func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

func (c Config) buffer() int {
	if c.BufferSize <= 0 {
		return DefaultConfig().BufferSize
	}
	return c.BufferSize
}

// ValidateSubject rejects empty tokens, wildcards embedded in a token and
// a ">" anywhere but last.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	tokens := strings.Split(subject, ".")
	last := len(tokens) - 1
	for i, tok := range tokens {
		if tok == "" || (tok == ">" && i != last) {
			return ErrInvalidSubject
		}
		if tok != "*" && tok != ">" && strings.ContainsAny(tok, "*> \t") {
			return ErrInvalidSubject
		}
	}
	return nil
}

// Match reports whether subject is covered by pattern.
func Match(pattern, subject string) bool {
	want := strings.Split(pattern, ".")
	got := strings.Split(subject, ".")
	for i := range want {
		switch {
		case want[i] == ">":
			return i < len(got)
		case i == len(got):
			return false
		case want[i] != "*" && want[i] != got[i]:
			return false
		}
	}
	return len(want) == len(got)
}

var tokenEscaper = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// Token escapes a free-form value such as an account name or task ID into
// one subject token.
func Token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenEscaper.Replace(s)
}

// queue is the channel side of a subscription, shared by both buses. offer
// never blocks; close is idempotent and safe against a concurrent offer.
type queue struct {
	mu     sync.Mutex
	ch     chan *Message
	done   bool
	onDrop func()
}

func newQueue(size int, onDrop func()) *queue {
	return &queue{ch: make(chan *Message, size), onDrop: onDrop}
}

func (q *queue) offer(m *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	select {
	case q.ch <- m:
	default:
		if q.onDrop != nil {
			q.onDrop()
		}
	}
}

// close reports whether this call closed the queue.
func (q *queue) close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return false
	}
	q.done = true
	close(q.ch)
	return true
}

func (q *queue) Messages() <-chan *Message { return q.ch }
