package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/locks"
	"github.com/vinayprograms/freightkit/logging"
)

// Common errors.
var (
	ErrUnknownShipType = errors.New("unknown ship type")
	ErrNotLocked       = errors.New("pool lock not held")
	ErrNotEnough       = errors.New("not enough free vessels")
	ErrClosed          = errors.New("pool closed")
)

// Pool reports the free vessels of each ship type.
type Pool interface {
	Free(ctx context.Context, shipType cargo.ShipType) (int64, error)
}

// Capacity describes one ship type's pool.
type Capacity struct {
	ShipType string
	Free     int64
	Total    int64
}

// MemoryPool is an in-process vessel pool. Take and Return must be called
// while holding the ship type's pool lock; ReturnAfter takes the lock
// itself when the vessels come home.
type MemoryPool struct {
	mu     sync.Mutex
	free   map[string]int64
	total  map[string]int64
	timers map[*time.Timer]struct{}
	closed bool

	locks         *locks.Manager
	logger        *logging.Logger
	returnTimeout time.Duration
	retryDelay    time.Duration
}

// PoolOption configures a MemoryPool.
type PoolOption func(*MemoryPool)

// WithLogger sets the logger used for returns that could not take the lock.
func WithLogger(l *logging.Logger) PoolOption {
	return func(p *MemoryPool) {
		if l != nil {
			p.logger = l.WithComponent("fleet")
		}
	}
}

// WithReturnTimeout bounds each attempt to take the pool lock when vessels
// come home.
func WithReturnTimeout(d time.Duration) PoolOption {
	return func(p *MemoryPool) {
		if d > 0 {
			p.returnTimeout = d
		}
	}
}

// NewMemoryPool creates an empty pool guarded by lm.
func NewMemoryPool(lm *locks.Manager, opts ...PoolOption) *MemoryPool {
	p := &MemoryPool{
		free:          make(map[string]int64),
		total:         make(map[string]int64),
		timers:        make(map[*time.Timer]struct{}),
		locks:         lm,
		logger:        logging.Discard(),
		returnTimeout: time.Minute,
		retryDelay:    time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetFleet sets a ship type's fleet size. All vessels start free.
func (p *MemoryPool) SetFleet(shipType cargo.ShipType, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total <= 0 {
		delete(p.free, shipType.Name)
		delete(p.total, shipType.Name)
		return
	}
	p.free[shipType.Name] = total
	p.total[shipType.Name] = total
}

// Free implements Pool.
func (p *MemoryPool) Free(ctx context.Context, shipType cargo.ShipType) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.free[shipType.Name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownShipType, shipType.Name)
	}
	return n, nil
}

// Capacity returns the pool's free and total vessels.
func (p *MemoryPool) Capacity(shipType cargo.ShipType) *Capacity {
	p.mu.Lock()
	defer p.mu.Unlock()
	total, ok := p.total[shipType.Name]
	if !ok {
		return nil
	}
	return &Capacity{ShipType: shipType.Name, Free: p.free[shipType.Name], Total: total}
}

func (p *MemoryPool) checkLocked(shipType cargo.ShipType) error {
	if p.locks != nil && !p.locks.IsLocked(shipType.PoolName()) {
		return fmt.Errorf("%w: %s", ErrNotLocked, shipType.PoolName())
	}
	return nil
}

// Take removes n vessels from the pool.
func (p *MemoryPool) Take(shipType cargo.ShipType, n int64) error {
	if err := p.checkLocked(shipType); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	free, ok := p.free[shipType.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShipType, shipType.Name)
	}
	if free < n {
		return fmt.Errorf("%w: want %d, have %d", ErrNotEnough, n, free)
	}
	p.free[shipType.Name] = free - n
	return nil
}

// Return puts n vessels back, never above the fleet size.
func (p *MemoryPool) Return(shipType cargo.ShipType, n int64) error {
	if err := p.checkLocked(shipType); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.give(shipType.Name, n)
	return nil
}

func (p *MemoryPool) give(name string, n int64) {
	total, ok := p.total[name]
	if !ok {
		return
	}
	free := p.free[name] + n
	if free > total {
		free = total
	}
	p.free[name] = free
}

// ReturnAfter brings n vessels home after d, taking the pool lock to do
// so. A return that cannot get the lock is logged and retried until it
// lands or the pool is closed. Close cancels vessels still at sea.
func (p *MemoryPool) ReturnAfter(shipType cargo.ShipType, n int64, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		p.mu.Lock()
		delete(p.timers, t)
		p.mu.Unlock()

		home := func(*locks.Handle) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.give(shipType.Name, n)
			return nil
		}
		if p.locks == nil {
			home(nil)
			return
		}
		for attempt := 1; ; attempt++ {
			err := p.locks.WithLock(context.Background(), shipType.PoolName(), "fleet-return", p.returnTimeout, home)
			if err == nil || p.isClosed() {
				return
			}
			p.logger.Warn("return_retry", map[string]interface{}{
				"ship_type": shipType.Name,
				"vessels":   n,
				"attempt":   attempt,
				"error":     err.Error(),
			})
			time.Sleep(p.retryDelay)
		}
	})
	p.timers[t] = struct{}{}
}

func (p *MemoryPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close cancels pending returns.
func (p *MemoryPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for t := range p.timers {
		t.Stop()
	}
	p.timers = make(map[*time.Timer]struct{})
}
