package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recorder collects task events from handlers and listeners.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestPriorityOrdering(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	done := make(chan string, 8)

	q := New(
		WithMaxConcurrent(1),
		WithHandler("blocker", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			<-release
			return nil, nil
		}),
		WithHandler("work", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			name := payload["name"].(string)
			rec.add(name)
			done <- name
			return nil, nil
		}),
	)
	defer q.Close()

	_, err := q.Enqueue(&Task{Type: "blocker"})
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		priority Priority
	}{
		{"low", PriorityLow},
		{"urgent", PriorityUrgent},
		{"medium-1", PriorityMedium},
		{"medium-2", PriorityMedium},
		{"high", PriorityHigh},
	} {
		_, err := q.Enqueue(&Task{
			Type:     "work",
			Priority: tc.priority,
			Payload:  map[string]interface{}{"name": tc.name},
		})
		require.NoError(t, err)
	}

	close(release)
	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	// Urgent drains first, then high, then the mediums in arrival
	// order, then low.
	assert.Equal(t, []string{"urgent", "high", "medium-1", "medium-2", "low"}, rec.list())
}

func TestRetryRequeuesAtFront(t *testing.T) {
	rec := &recorder{}
	done := make(chan struct{}, 8)
	var flakyCalls int32

	q := New(
		WithMaxConcurrent(1),
		WithHandler("flaky", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			rec.add("flaky")
			if atomic.AddInt32(&flakyCalls, 1) == 1 {
				return nil, fmt.Errorf("transient failure")
			}
			done <- struct{}{}
			return nil, nil
		}),
		WithHandler("steady", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			rec.add("steady")
			done <- struct{}{}
			return nil, nil
		}),
	)
	defer q.Close()

	_, err := q.Enqueue(&Task{Type: "flaky", MaxRetries: 2})
	require.NoError(t, err)
	_, err = q.Enqueue(&Task{Type: "steady"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	// The retry runs before the task enqueued behind it.
	assert.Equal(t, []string{"flaky", "flaky", "steady"}, rec.list())
}

func TestTaskTimeout(t *testing.T) {
	errs := make(chan error, 1)

	q := New(WithHandler("slow", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	}))
	defer q.Close()

	_, err := q.Enqueue(&Task{
		Type:    "slow",
		Timeout: 20 * time.Millisecond,
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "timed out")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the error callback")
	}
}

func TestRetryExhaustionFailsTask(t *testing.T) {
	errs := make(chan error, 1)
	var calls int32

	q := New(WithHandler("broken", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, fmt.Errorf("always broken")
	}))
	defer q.Close()

	_, err := q.Enqueue(&Task{
		Type:       "broken",
		MaxRetries: 2,
		OnError:    func(err error) { errs <- err },
	})
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "always broken")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the error callback")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUnknownTaskTypeFails(t *testing.T) {
	errs := make(chan error, 1)

	q := New()
	defer q.Close()

	_, err := q.Enqueue(&Task{
		Type:    "mystery",
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "no handler registered")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the error callback")
	}
}

func TestCancelPendingTask(t *testing.T) {
	release := make(chan struct{})

	q := New(
		WithMaxConcurrent(1),
		WithHandler("blocker", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			<-release
			return nil, nil
		}),
	)
	t.Cleanup(q.Close)
	t.Cleanup(func() { close(release) })

	_, err := q.Enqueue(&Task{Type: "blocker"})
	require.NoError(t, err)

	pending := &Task{Type: "blocker"}
	id, err := q.Enqueue(pending)
	require.NoError(t, err)
	require.Equal(t, 1, q.Status().Pending)

	require.NoError(t, q.Cancel(id))
	assert.Equal(t, StatusCancelled, pending.Status)
	assert.Equal(t, 0, q.Status().Pending)

	assert.Error(t, q.Cancel("no-such-task"))
}

func TestCancelRunningTaskDiscardsResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cancelled := make(chan *Task, 1)
	completed := make(chan struct{}, 1)

	q := New(
		WithHandler("slow", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			close(started)
			<-release
			return "finished anyway", nil
		}),
		WithListener(func(task *Task, status Status) {
			if status == StatusCancelled {
				cancelled <- task
			}
		}),
	)
	defer q.Close()

	task := &Task{
		Type:       "slow",
		OnComplete: func(result interface{}) { completed <- struct{}{} },
	}
	id, err := q.Enqueue(task)
	require.NoError(t, err)

	<-started
	require.NoError(t, q.Cancel(id))
	close(release)

	select {
	case got := <-cancelled:
		assert.Equal(t, id, got.ID)
		assert.Equal(t, StatusCancelled, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}

	// The handler's late success must not surface.
	select {
	case <-completed:
		t.Fatal("OnComplete fired for a cancelled task")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduledTaskBlocksQueueHead(t *testing.T) {
	var order []string
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	q := New(
		WithMaxConcurrent(1),
		WithRedispatchDelay(5*time.Millisecond),
		WithHandler("work", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			mu.Lock()
			order = append(order, payload["name"].(string))
			mu.Unlock()
			done <- struct{}{}
			return nil, nil
		}),
	)
	defer q.Close()

	_, err := q.Enqueue(&Task{
		Type:         "work",
		Priority:     PriorityHigh,
		ScheduledFor: time.Now().Add(80 * time.Millisecond),
		Payload:      map[string]interface{}{"name": "scheduled"},
	})
	require.NoError(t, err)
	_, err = q.Enqueue(&Task{
		Type:    "work",
		Payload: map[string]interface{}{"name": "behind"},
	})
	require.NoError(t, err)

	// The scheduled head holds back everything behind it.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, q.Status().Pending)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"scheduled", "behind"}, order)
}

func TestConcurrencyBound(t *testing.T) {
	var running, peak int32
	done := make(chan struct{}, 8)

	q := New(
		WithMaxConcurrent(2),
		WithHandler("work", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			done <- struct{}{}
			return nil, nil
		}),
	)
	defer q.Close()

	for i := 0; i < 6; i++ {
		_, err := q.Enqueue(&Task{Type: "work"})
		require.NoError(t, err)
	}
	for i := 0; i < 6; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestClearCancelsPending(t *testing.T) {
	release := make(chan struct{})

	q := New(
		WithMaxConcurrent(1),
		WithHandler("blocker", func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			<-release
			return nil, nil
		}),
	)
	t.Cleanup(q.Close)
	t.Cleanup(func() { close(release) })

	_, err := q.Enqueue(&Task{Type: "blocker"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(&Task{Type: "blocker"})
		require.NoError(t, err)
	}
	require.Equal(t, 3, q.Status().Pending)

	q.Clear()
	assert.Equal(t, 0, q.Status().Pending)
	assert.Equal(t, 1, q.Status().Running)
}

func TestEnqueueValidation(t *testing.T) {
	q := New()
	defer q.Close()

	_, err := q.Enqueue(nil)
	assert.Error(t, err)

	_, err = q.Enqueue(&Task{})
	assert.Error(t, err)
}

// Pending order is always sorted by priority rank and stable within a
// rank, whatever the insertion sequence.
func TestInsertionOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := New()
		defer q.Close()

		priorities := rapid.SliceOfN(
			rapid.SampledFrom([]Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}),
			1, 30,
		).Draw(t, "priorities")

		// Far-future schedules keep everything pending so only the
		// insertion logic is observed.
		future := time.Now().Add(time.Hour)
		var ids []string
		for i, pr := range priorities {
			id, err := q.Enqueue(&Task{
				ID:           fmt.Sprintf("task-%03d", i),
				Type:         "noop",
				Priority:     pr,
				ScheduledFor: future,
			})
			if err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
			ids = append(ids, id)
		}

		type item struct {
			id   string
			rank int
		}
		expected := make([]item, len(ids))
		for i, id := range ids {
			expected[i] = item{id, priorities[i].rank()}
		}
		sort.SliceStable(expected, func(i, j int) bool {
			return expected[i].rank < expected[j].rank
		})

		got := q.Pending()
		if len(got) != len(expected) {
			t.Fatalf("pending length %d, want %d", len(got), len(expected))
		}
		for i := range got {
			if got[i].ID != expected[i].id {
				t.Fatalf("position %d: got %s, want %s", i, got[i].ID, expected[i].id)
			}
		}
	})
}
