package devmem

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// DefaultStreams is the default number of independent execution queues in a
// StreamPool.
const DefaultStreams = 4

// ErrStreamClosed is returned by Submit after the pool has been closed.
var ErrStreamClosed = errors.New("devmem: stream pool closed")

// Event signals completion of one asynchronously executed task. Consumers
// synchronize against it instead of joining the executing queue, so several
// reconstructions can stay in flight at once.
type Event struct {
	done chan struct{}
	err  error
}

func newEvent() *Event { return &Event{done: make(chan struct{})} }

func (e *Event) complete(err error) {
	e.err = err
	close(e.done)
}

// Done reports completion without blocking.
func (e *Event) Done() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task completes or ctx is canceled, and returns the
// task's error.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream is a single in-order asynchronous execution queue. Tasks submitted
// to the same stream run sequentially; tasks on different streams overlap.
type Stream struct {
	tasks chan task
	pool  *StreamPool
}

type task struct {
	fn    func() error
	bytes int
	ev    *Event
}

// Submit schedules fn on the stream and returns its completion event. bytes
// is the task's payload size, charged against the pool's optional
// throughput limit.
func (s *Stream) Submit(bytes int, fn func() error) *Event {
	ev := newEvent()

	s.pool.submitMu.RLock()
	defer s.pool.submitMu.RUnlock()
	if s.pool.closed.Load() {
		ev.complete(ErrStreamClosed)
		return ev
	}
	s.tasks <- task{fn: fn, bytes: bytes, ev: ev}
	return ev
}

// StreamPoolOption configures a StreamPool.
type StreamPoolOption func(*StreamPool)

// WithThroughputLimit caps the aggregate bytes per second executed by the
// pool. Intended to keep background decompression from starving the
// training computation of memory bandwidth.
func WithThroughputLimit(bytesPerSec int64) StreamPoolOption {
	return func(p *StreamPool) {
		if bytesPerSec > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
		}
	}
}

// StreamPool is a fixed set of independent streams. Dispatch is round-robin
// per Next call; there is no work stealing and no cancellation of submitted
// tasks.
type StreamPool struct {
	streams []*Stream
	next    atomic.Uint32
	limiter *rate.Limiter

	closed   atomic.Bool
	submitMu sync.RWMutex
	wg       sync.WaitGroup
}

// NewStreamPool creates a pool with n streams (n <= 0 means
// DefaultStreams).
func NewStreamPool(n int, opts ...StreamPoolOption) *StreamPool {
	if n <= 0 {
		n = DefaultStreams
	}

	p := &StreamPool{streams: make([]*Stream, n)}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(n)
	for i := range p.streams {
		s := &Stream{tasks: make(chan task, 2), pool: p}
		p.streams[i] = s
		go p.run(s)
	}
	return p
}

func (p *StreamPool) run(s *Stream) {
	defer p.wg.Done()
	for t := range s.tasks {
		if p.limiter != nil && t.bytes > 0 {
			if err := p.waitBudget(t.bytes); err != nil {
				t.ev.complete(err)
				continue
			}
		}
		t.ev.complete(t.fn())
	}
}

// waitBudget acquires n bytes from the limiter in burst-sized pieces, so a
// task larger than one second's budget throttles instead of exceeding the
// limiter's burst.
func (p *StreamPool) waitBudget(n int) error {
	burst := p.limiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := p.limiter.WaitN(context.Background(), step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Next returns the next stream in round-robin order.
func (p *StreamPool) Next() *Stream {
	n := p.next.Add(1) - 1
	return p.streams[int(n)%len(p.streams)]
}

// Len returns the number of streams.
func (p *StreamPool) Len() int { return len(p.streams) }

// Close drains the pool. Submissions after Close complete with
// ErrStreamClosed; Close is idempotent.
func (p *StreamPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.submitMu.Lock()
	for _, s := range p.streams {
		close(s.tasks)
	}
	p.submitMu.Unlock()
	p.wg.Wait()
}
