package heartbeat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/freightkit/bus"
)

// Describer reports the current health state and status message of a task.
// health.Tracker satisfies it.
type Describer interface {
	Describe(taskID string) (state, status string)
}

// PublisherConfig configures a heartbeat publisher.
type PublisherConfig struct {
	// Bus is the message bus for publishing heartbeats.
	Bus bus.MessageBus

	// Registry is the source of beats.
	Registry *Registry

	// Account tags every heartbeat.
	Account string

	// Describer adds state and status. Optional.
	Describer Describer

	// Interval between mirror rounds.
	// Default: 5 seconds
	Interval time.Duration
}

// Validate checks the configuration.
func (c *PublisherConfig) Validate() error {
	if c.Bus == nil || c.Registry == nil {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultPublisherConfig returns configuration with sensible defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Interval: 5 * time.Second,
	}
}

// Publisher mirrors every task in a Registry onto the bus at a fixed
// interval, one message per task on heartbeat.<account>.<task>.
type Publisher struct {
	cfg PublisherConfig

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPublisher creates a publisher.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPublisherConfig().Interval
	}
	return &Publisher{cfg: cfg}, nil
}

// Start begins publishing. It publishes one round immediately.
func (p *Publisher) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.run(ctx)
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.doneCh)

	p.PublishOnce()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.PublishOnce()
		}
	}
}

// PublishOnce mirrors every task once. Publish errors are counted in the
// return value; a bus outage must never stall a task.
func (p *Publisher) PublishOnce() (failed int) {
	for _, taskID := range p.cfg.Registry.Tasks() {
		last, ok := p.cfg.Registry.Last(taskID)
		if !ok {
			continue
		}
		hb := &Heartbeat{
			Account:   p.cfg.Account,
			TaskID:    taskID,
			Timestamp: last,
		}
		if p.cfg.Describer != nil {
			hb.State, hb.Status = p.cfg.Describer.Describe(taskID)
		}
		data, err := hb.Marshal()
		if err != nil {
			failed++
			continue
		}
		if err := p.cfg.Bus.Publish(hb.Subject(), data); err != nil {
			failed++
		}
	}
	return failed
}

// Stop stops publishing and waits for the loop to exit.
func (p *Publisher) Stop() error {
	if !p.running.Swap(false) {
		return ErrNotStarted
	}
	close(p.stopCh)
	<-p.doneCh
	return nil
}
