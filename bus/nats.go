package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus carries alerts and heartbeat mirrors across processes, so a
// status view elsewhere can follow an account's runs.
type NATSBus struct {
	conn  *nats.Conn
	size  int
	flush time.Duration
}

// NATSConfig is the connection setup for NewNATSBus.
type NATSConfig struct {
	Config

	URL  string
	Name string // client name shown by the server

	// Token, or User and Password, authenticate the connection.
	Token    string
	User     string
	Password string

	ReconnectWait  time.Duration
	MaxReconnects  int // -1 retries forever
	ConnectTimeout time.Duration

	// FlushTimeout bounds the flush in Close, so alerts raised just
	// before exit still reach the server.
	FlushTimeout time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		Name:           "freightkit",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
		FlushTimeout:   2 * time.Second,
	}
}

// NewNATSBus dials cfg.URL, or the NATS default URL when empty.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, buildNATSOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSBus{conn: conn, size: cfg.buffer(), flush: cfg.FlushTimeout}, nil
}

func buildNATSOptions(cfg NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	for _, opt := range []struct {
		set bool
		opt nats.Option
	}{
		{cfg.Name != "", nats.Name(cfg.Name)},
		{cfg.Token != "", nats.Token(cfg.Token)},
		{cfg.User != "", nats.UserInfo(cfg.User, cfg.Password)},
	} {
		if opt.set {
			opts = append(opts, opt.opt)
		}
	}
	return opts
}

func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := b.usable(subject); err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(subject string) (Subscription, error) {
	if err := b.usable(subject); err != nil {
		return nil, err
	}
	q := newQueue(b.size, nil)
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		q.offer(&Message{Subject: m.Subject, Data: m.Data})
	})
	if err != nil {
		q.close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return &natsSub{queue: q, sub: sub}, nil
}

func (b *NATSBus) usable(subject string) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close flushes queued publishes, bounded by FlushTimeout, then closes
// the connection. A flush failure is returned after the close.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	var err error
	if b.flush > 0 && b.conn.IsConnected() {
		err = b.conn.FlushTimeout(b.flush)
	}
	b.conn.Close()
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

type natsSub struct {
	*queue
	sub *nats.Subscription
}

func (s *natsSub) Unsubscribe() error {
	if !s.close() {
		return nil
	}
	return s.sub.Unsubscribe()
}
