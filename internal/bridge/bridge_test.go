package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_ReturnsResult(t *testing.T) {
	r := NewRunner(4, time.Second)
	defer r.Shutdown()

	f, err := Submit(r, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSubmit_PropagatesError(t *testing.T) {
	r := NewRunner(4, time.Second)
	defer r.Shutdown()

	boom := errors.New("boom")
	f, err := Submit(r, func(ctx context.Context) (string, error) {
		return "", boom
	})
	require.NoError(t, err)

	_, err = f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSubmit_TasksRunInOrder(t *testing.T) {
	r := NewRunner(16, time.Second)
	defer r.Shutdown()

	var order []int
	var last *Future[int]
	for i := 0; i < 5; i++ {
		i := i
		f, err := Submit(r, func(ctx context.Context) (int, error) {
			order = append(order, i)
			return i, nil
		})
		require.NoError(t, err)
		last = f
	}

	_, err := last.Wait(context.Background())
	require.NoError(t, err)
	// One worker goroutine executes submissions sequentially, so the slice
	// mutation above is race-free and ordered.
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSubmit_AfterShutdown(t *testing.T) {
	r := NewRunner(4, time.Second)
	r.Shutdown()

	_, err := Submit(r, func(ctx context.Context) (int, error) {
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestShutdown_CancelsInFlightTask(t *testing.T) {
	r := NewRunner(4, time.Second)

	started := make(chan struct{})
	f, err := Submit(r, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	r.Shutdown()

	_, err = f.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShutdown_FailsQueuedTasks(t *testing.T) {
	r := NewRunner(16, time.Second)

	release := make(chan struct{})
	blocker, err := Submit(r, func(ctx context.Context) (int, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 0, ctx.Err()
	})
	require.NoError(t, err)

	var ran atomic.Bool
	queued, err := Submit(r, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	require.NoError(t, err)

	r.Shutdown()
	close(release)

	_, err = blocker.Wait(context.Background())
	assert.Error(t, err)

	// The queued task never executes; it completes with the closed error.
	_, err = queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrRunnerClosed)
	assert.False(t, ran.Load())
}

func TestSubmit_AfterShutdownNeverStrandsFuture(t *testing.T) {
	// The select in Submit races the worker's exit; run many rounds so a
	// lost submission would surface as a Future that never completes.
	for i := 0; i < 200; i++ {
		r := NewRunner(4, time.Second)
		r.Shutdown()

		f, err := Submit(r, func(ctx context.Context) (int, error) {
			return i, nil
		})
		if err != nil {
			assert.ErrorIs(t, err, ErrRunnerClosed)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err = f.Wait(ctx)
		cancel()
		if !errors.Is(err, ErrRunnerClosed) {
			t.Fatalf("iteration %d: Submit after Shutdown returned a Future that did not fail closed: %v", i, err)
		}
	}
}

func TestSubmit_ConcurrentWithShutdownCompletesEveryFuture(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := NewRunner(1, time.Second)

		var wg sync.WaitGroup
		futures := make(chan *Future[int], 8)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f, err := Submit(r, func(ctx context.Context) (int, error) {
					return 1, ctx.Err()
				})
				if err == nil {
					futures <- f
				}
			}()
		}
		go r.Shutdown()
		wg.Wait()
		r.Shutdown() // blocks until the first Shutdown finished
		close(futures)

		// Every accepted submission resolves: executed, canceled, or failed
		// by the post-shutdown drain. None may hang.
		for f := range futures {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_, err := f.Wait(ctx)
			cancel()
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("iteration %d: accepted submission never completed", i)
			}
		}
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	r := NewRunner(4, 100*time.Millisecond)
	r.Shutdown()
	r.Shutdown() // must not panic or block
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	r := NewRunner(4, time.Second)
	defer r.Shutdown()

	release := make(chan struct{})
	defer close(release)
	f, err := Submit(r, func(ctx context.Context) (int, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 1, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_DoneChannel(t *testing.T) {
	r := NewRunner(4, time.Second)
	defer r.Shutdown()

	f, err := Submit(r, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected future to complete")
	}
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCall_ReturnsResult(t *testing.T) {
	v, err := Call(time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCall_DeadlineApplies(t *testing.T) {
	_, err := Call(20*time.Millisecond, func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 1, nil
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_ZeroTimeoutMeansNoDeadline(t *testing.T) {
	v, err := Call(0, func(ctx context.Context) (bool, error) {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline, nil
	})
	require.NoError(t, err)
	assert.False(t, v)
}
