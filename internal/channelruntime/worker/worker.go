package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("worker: queue full")

type StartOptions[J any] struct {
	Ctx    context.Context
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)
	// OnExit runs once after the loop stops.
	OnExit func()
	// IdleTimeout, when positive, calls OnIdle after that long without a
	// job. The loop stops if OnIdle returns true.
	IdleTimeout time.Duration
	OnIdle      func() bool
}

func Start[J any](opts StartOptions[J]) {
	go func() {
		if opts.OnExit != nil {
			defer opts.OnExit()
		}
		for {
			var idle <-chan time.Time
			var timer *time.Timer
			if opts.IdleTimeout > 0 && opts.OnIdle != nil {
				timer = time.NewTimer(opts.IdleTimeout)
				idle = timer.C
			}
			select {
			case <-opts.Ctx.Done():
				stopTimer(timer)
				return
			case <-idle:
				if opts.OnIdle() {
					return
				}
			case job, ok := <-opts.Jobs:
				stopTimer(timer)
				if !ok {
					return
				}
				select {
				case opts.Sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				func() {
					defer func() { <-opts.Sem }()
					opts.Handle(opts.Ctx, job)
				}()
			}
		}
	}()
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}

const (
	DefaultLaneBuffer      = 16
	DefaultLaneIdleTimeout = 5 * time.Minute
)

// Pool runs jobs in one lane per key. Jobs sharing a key run in submission
// order; lanes share a semaphore that caps how many jobs run at once. A lane
// with nothing queued is closed after its idle timeout and recreated on the
// next job for that key.
type Pool[K comparable, J any] struct {
	ctx         context.Context
	sem         chan struct{}
	handle      func(context.Context, J)
	buffer      int
	idleTimeout time.Duration

	mu    sync.Mutex
	lanes map[K]*lane[J]
	wg    sync.WaitGroup
}

type lane[J any] struct {
	jobs chan J
	// pending counts jobs submitted but not yet handled; guarded by Pool.mu.
	pending int
}

type PoolOptions[J any] struct {
	MaxConcurrency int
	LaneBuffer     int
	// IdleTimeout closes lanes that stayed empty this long. Zero uses
	// DefaultLaneIdleTimeout; negative keeps lanes forever.
	IdleTimeout time.Duration
	Handle      func(context.Context, J)
}

// NewPool returns a pool bound to ctx. Cancelling ctx stops every lane.
func NewPool[K comparable, J any](ctx context.Context, opts PoolOptions[J]) *Pool[K, J] {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.LaneBuffer <= 0 {
		opts.LaneBuffer = DefaultLaneBuffer
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultLaneIdleTimeout
	}
	return &Pool[K, J]{
		ctx:         ctx,
		sem:         make(chan struct{}, opts.MaxConcurrency),
		handle:      opts.Handle,
		buffer:      opts.LaneBuffer,
		idleTimeout: opts.IdleTimeout,
		lanes:       make(map[K]*lane[J]),
	}
}

// reserveLocked returns key's lane, starting one if needed, and counts one
// more pending job on it so the lane is not closed underneath the caller.
func (p *Pool[K, J]) reserveLocked(key K) *lane[J] {
	l, ok := p.lanes[key]
	if !ok {
		l = &lane[J]{jobs: make(chan J, p.buffer)}
		p.lanes[key] = l
		p.wg.Add(1)
		Start(StartOptions[J]{
			Ctx:  p.ctx,
			Sem:  p.sem,
			Jobs: l.jobs,
			Handle: func(ctx context.Context, job J) {
				defer p.release(l)
				p.handle(ctx, job)
			},
			OnExit:      p.wg.Done,
			IdleTimeout: p.idleTimeout,
			OnIdle:      func() bool { return p.closeIfIdle(key, l) },
		})
	}
	l.pending++
	return l
}

func (p *Pool[K, J]) reserve(key K) *lane[J] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveLocked(key)
}

func (p *Pool[K, J]) release(l *lane[J]) {
	p.mu.Lock()
	l.pending--
	p.mu.Unlock()
}

func (p *Pool[K, J]) closeIfIdle(key K, l *lane[J]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.pending > 0 || p.lanes[key] != l {
		return false
	}
	delete(p.lanes, key)
	return true
}

// Submit queues job on key's lane, blocking while the lane is full.
func (p *Pool[K, J]) Submit(ctx context.Context, key K, job J) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	l := p.reserve(key)
	if err := Enqueue(ctx, p.ctx, l.jobs, job); err != nil {
		p.release(l)
		return err
	}
	return nil
}

// TrySubmit queues job without blocking.
func (p *Pool[K, J]) TrySubmit(key K, job J) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	l := p.reserve(key)
	select {
	case l.jobs <- job:
		return nil
	default:
		p.release(l)
		return ErrQueueFull
	}
}

// Lanes reports how many keys currently have a lane.
func (p *Pool[K, J]) Lanes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Wait blocks until every lane has stopped. Lanes stop when the pool
// context is cancelled or after they go idle.
func (p *Pool[K, J]) Wait() {
	p.wg.Wait()
}
