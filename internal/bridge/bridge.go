// Package bridge lets callers that cannot run their own event loop drive
// asynchronous client operations. Runner owns a dedicated worker goroutine
// with a task queue: other threads submit closures and receive a Future to
// block on or poll, so an interactive front end never blocks its own loop.
// Call is the call-scoped counterpart for one-shot blocking callers.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrRunnerClosed is returned by Submit after Shutdown, and completes any
// task still queued when the runner stops.
var ErrRunnerClosed = errors.New("bridge: runner is shut down")

// DefaultGrace bounds how long Shutdown waits for in-flight work.
const DefaultGrace = 5 * time.Second

// Future is the single-assignment result slot for a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.val = v
	f.err = err
	close(f.done)
}

// Done is closed once the result is available, for poll-style callers.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx expires.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Runner is the long-lived background loop: one goroutine executes
// submitted tasks in order for the lifetime of the application. Shutdown
// cancels the task context, waits up to the grace period, and fails
// whatever is still queued.
type Runner struct {
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	grace  time.Duration
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

// NewRunner starts the worker. queueSize bounds how many tasks may be
// pending before Submit blocks; grace bounds Shutdown.
func NewRunner(queueSize int, grace time.Duration) *Runner {
	if queueSize <= 0 {
		queueSize = 16
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		tasks:  make(chan func(context.Context), queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		grace:  grace,
	}
	go r.loop()
	return r
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			// Drain the queue: tasks run with the canceled context so
			// they observe cancellation instead of hanging forever.
			for {
				select {
				case task := <-r.tasks:
					task(r.ctx)
				default:
					return
				}
			}
		case task := <-r.tasks:
			task(r.ctx)
		}
	}
}

// Submit schedules fn on r's worker and returns a Future for its result.
// The worker passes fn a context canceled at Shutdown; fn should honor it.
func Submit[T any](r *Runner, fn func(context.Context) (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	task := func(ctx context.Context) {
		if ctx.Err() != nil {
			f.complete(*new(T), ErrRunnerClosed)
			return
		}
		f.complete(fn(ctx))
	}

	// The closed check and the send share the lock: any task accepted here
	// lands in the queue before Shutdown's final drain runs, so a returned
	// Future always completes. Without this, a send racing the worker's exit
	// could enqueue a task nobody will ever run.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRunnerClosed
	}
	select {
	case <-r.ctx.Done():
		return nil, ErrRunnerClosed
	case r.tasks <- task:
		return f, nil
	}
}

// Shutdown cancels in-flight work, waits up to the grace period for the
// worker to exit, then fails anything still queued. It is safe to call more
// than once; later calls wait for the first to finish.
func (r *Runner) Shutdown() {
	r.once.Do(func() {
		// Cancel before taking the lock so a Submit blocked on a full queue
		// unblocks and releases it.
		r.cancel()
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		select {
		case <-r.done:
		case <-time.After(r.grace):
			log.Warn().Dur("grace", r.grace).Msg("Background runner did not drain within grace period")
		}

		// A Submit that won the send race against the worker's exit left its
		// task in the queue; complete those with the canceled context.
		for {
			select {
			case task := <-r.tasks:
				task(r.ctx)
			default:
				return
			}
		}
	})
}

// Call runs fn to completion with its own deadline. It exists for callers
// outside any scheduler that need exactly one operation executed and its
// result or error returned; the deadline's resources are released before
// Call returns, so nothing leaks across calls.
func Call[T any](timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
