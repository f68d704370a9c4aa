package fetchlib

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warpdl/rtfetch/pkg/logger"
)

// PooledConn is a Conn checked out of a Pool. It must be handed back with
// Pool.Release exactly once.
type PooledConn struct {
	Conn
	CreatedAt  time.Time
	LastUsedAt time.Time
	UseCount   int

	inUse bool
}

// PoolOpts configures a Pool. Zero values select the defaults.
type PoolOpts struct {
	// MaxConns bounds idle plus checked-out connections. See PoolCapacity.
	MaxConns    int
	MaxConnAge  time.Duration
	MaxIdleTime time.Duration
	// SweepInterval is the period of the background expiry sweep.
	// A negative value disables the sweep.
	SweepInterval time.Duration
	// Retry wraps every dial. Nil means DefaultRetryConfig with
	// IsTransient as the retry predicate.
	Retry *RetryConfig
	// Stats receives connection attempts and pool hits/misses. Optional.
	Stats  *StatsTracker
	Logger logger.Logger
}

// PoolStats is a snapshot of the pool counters.
type PoolStats struct {
	// Active is the number of checked-out connections.
	Active int
	Idle   int
	Max    int
	// Utilization is (Active+Idle)/Max in percent.
	Utilization float64
}

// Pool is a bounded set of authenticated connections shared by the resolver
// and all segment workers. Once closed it fails closed: Acquire returns
// ErrPoolClosed.
type Pool struct {
	dialer Dialer
	opts   PoolOpts
	retry  RetryConfig
	log    logger.Logger
	stats  *StatsTracker
	now    func() time.Time

	mu          sync.Mutex
	idle        []*PooledConn
	outstanding int
	closed      bool

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewPool creates a pool dialing through d and starts its sweep goroutine.
func NewPool(d Dialer, opts PoolOpts) *Pool {
	if opts.MaxConns < 1 {
		opts.MaxConns = PoolCapacity(1, DEF_SEGMENTS, DEF_POOL_CEILING)
	}
	if opts.MaxConnAge <= 0 {
		opts.MaxConnAge = DEF_MAX_CONN_AGE
	}
	if opts.MaxIdleTime <= 0 {
		opts.MaxIdleTime = DEF_MAX_IDLE_TIME
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DEF_SWEEP_INTERVAL
	}
	retry := DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	if retry.Retryable == nil {
		retry.Retryable = IsTransient
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNopLogger()
	}

	p := &Pool{
		dialer: d,
		opts:   opts,
		retry:  retry,
		log:    l,
		stats:  opts.Stats,
		now:    time.Now,
	}
	if opts.SweepInterval > 0 {
		p.stopSweep = make(chan struct{})
		p.sweepDone = make(chan struct{})
		safeGo(l, nil, "pool-sweep", nil, func() { p.sweepLoop(opts.SweepInterval) })
	}
	return p
}

// Acquire returns an idle connection that passes a NOOP probe, or dials a new
// one when the pool has room. It fails immediately with ErrCapacityExceeded
// when every slot is taken.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		n := len(p.idle)
		if n == 0 {
			break
		}
		pc := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		now := p.now()
		if p.expired(pc, now) {
			p.log.Debug("pool: discarding expired connection (age %s, uses %d)", now.Sub(pc.CreatedAt), pc.UseCount)
			p.discard(pc)
			continue
		}
		if err := pc.NoOp(); err != nil {
			p.log.Debug("pool: liveness probe failed: %v", err)
			p.discard(pc)
			continue
		}
		p.checkout(pc, now)
		if p.stats != nil {
			p.stats.RecordPoolHit()
		}
		return pc, nil
	}

	// still holding p.mu
	if p.outstanding >= p.opts.MaxConns {
		p.mu.Unlock()
		return nil, ErrCapacityExceeded
	}
	p.outstanding++
	p.mu.Unlock()

	conn, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		if !p.closed {
			p.outstanding--
		}
		p.mu.Unlock()
		return nil, err
	}

	now := p.now()
	pc := &PooledConn{Conn: conn, CreatedAt: now}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.quit(pc)
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()
	p.checkout(pc, now)
	if p.stats != nil {
		p.stats.RecordPoolMiss()
	}
	p.log.Debug("pool: opened %s connection", p.dialer.Protocol())
	return pc, nil
}

func (p *Pool) checkout(pc *PooledConn, now time.Time) {
	p.mu.Lock()
	pc.inUse = true
	pc.LastUsedAt = now
	pc.UseCount++
	p.mu.Unlock()
}

func (p *Pool) dial(ctx context.Context) (Conn, error) {
	attempts := 0
	conn, err := WithRetry(ctx, p.retry, func(ctx context.Context) (Conn, error) {
		attempts++
		c, err := p.dialer.Dial(ctx)
		if p.stats != nil {
			p.stats.RecordConnectionAttempt(err == nil)
		}
		if err != nil {
			p.log.Warning("%s: connection attempt %d/%d failed: %v", p.dialer.Protocol(), attempts, p.retry.MaxAttempts, err)
		}
		return c, err
	})
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Attempts: attempts, Cause: err}
	}
	return conn, nil
}

// Release hands pc back. Healthy connections that have not expired go back to
// the idle set; everything else is closed and frees its slot.
func (p *Pool) Release(pc *PooledConn, healthy bool) {
	if pc == nil {
		return
	}
	now := p.now()
	p.mu.Lock()
	if !pc.inUse {
		p.mu.Unlock()
		p.log.Warning("pool: connection released twice")
		return
	}
	pc.inUse = false
	if p.closed {
		p.mu.Unlock()
		p.quit(pc)
		return
	}
	if healthy && !p.expired(pc, now) {
		pc.LastUsedAt = now
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
		return
	}
	p.outstanding--
	p.mu.Unlock()
	p.quit(pc)
}

// WithConn runs fn on a pooled connection and releases it on every exit
// path, panics included. The connection is reused when fn succeeds or fails
// with an error that leaves the session in sync.
func (p *Pool) WithConn(ctx context.Context, fn func(c *PooledConn) error) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	healthy := false
	defer func() { p.Release(pc, healthy) }()
	err = fn(pc)
	healthy = reusableAfter(err)
	return err
}

// reusableAfter reports whether a session can be reused after err.
func reusableAfter(err error) bool {
	if err == nil || errors.Is(err, errNotInListing) {
		return true
	}
	var nf *PathNotFoundError
	if errors.As(err, &nf) {
		return nf.Cause == nil || reusableAfter(nf.Cause)
	}
	return isServerReply(err)
}

// discard closes a connection that was taken out of the idle set.
func (p *Pool) discard(pc *PooledConn) {
	p.mu.Lock()
	if !p.closed {
		p.outstanding--
	}
	p.mu.Unlock()
	p.quit(pc)
}

func (p *Pool) quit(pc *PooledConn) {
	if err := pc.Quit(); err != nil {
		p.log.Debug("pool: closing connection: %v", err)
	}
}

func (p *Pool) expired(pc *PooledConn, now time.Time) bool {
	return now.Sub(pc.CreatedAt) >= p.opts.MaxConnAge || now.Sub(pc.LastUsedAt) >= p.opts.MaxIdleTime
}

func (p *Pool) sweepLoop(interval time.Duration) {
	defer close(p.sweepDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-t.C:
			if n := p.sweep(); n > 0 {
				p.log.Debug("pool: sweep closed %d expired connections", n)
			}
		}
	}
}

// sweep closes every expired idle connection and returns how many it closed.
func (p *Pool) sweep() int {
	now := p.now()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	var expired []*PooledConn
	keep := p.idle[:0]
	for _, pc := range p.idle {
		if p.expired(pc, now) {
			expired = append(expired, pc)
		} else {
			keep = append(keep, pc)
		}
	}
	for i := len(keep); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = keep
	p.outstanding -= len(expired)
	p.mu.Unlock()

	for _, pc := range expired {
		if err := pc.Quit(); err != nil {
			p.log.Warning("pool: sweep failed to close connection: %v", err)
		}
	}
	return len(expired)
}

// Close stops the sweep, closes idle connections and resets the counter.
// Connections still checked out are closed when released. Calling Close more
// than once is a no-op.
func (p *Pool) Close() error {
	var firstErr error
	p.closeOnce.Do(func() {
		if p.stopSweep != nil {
			close(p.stopSweep)
			<-p.sweepDone
		}
		p.mu.Lock()
		p.closed = true
		idle := p.idle
		p.idle = nil
		p.outstanding = 0
		p.mu.Unlock()

		for _, pc := range idle {
			if err := pc.Quit(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := PoolStats{
		Active: p.outstanding - len(p.idle),
		Idle:   len(p.idle),
		Max:    p.opts.MaxConns,
	}
	if s.Max > 0 {
		s.Utilization = float64(p.outstanding) / float64(s.Max) * 100
	}
	return s
}
