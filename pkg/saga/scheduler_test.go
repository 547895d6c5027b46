package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/logger"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testAction struct {
	kind action.Type
	n    int
}

func (a testAction) Type() action.Type { return a.kind }

const (
	typePing action.Type = "test.action.ping"
	typePong action.Type = "test.action.pong"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newManual(opts ...Option) *Scheduler {
	opts = append([]Option{WithManualClock(epoch), WithLogger(logger.Discard())}, opts...)
	return New(opts...)
}

// start runs s until the test ends.
func start(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
	require.NoError(t, s.Flush(context.Background()))
}

func dispatch(t *testing.T, s *Scheduler, a action.Action) {
	t.Helper()
	require.NoError(t, s.Dispatch(context.Background(), a))
}

func advance(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	require.NoError(t, s.Advance(context.Background(), d))
}

func TestScheduler_TakeEveryRunsConcurrentInstances(t *testing.T) {
	s := newManual()
	rec := &recorder{}
	require.NoError(t, s.TakeEvery("ping", action.Is(typePing), func(task *Task, a action.Action) error {
		n := a.(testAction).n
		rec.add("start %d", n)
		if err := task.Sleep(100 * time.Millisecond); err != nil {
			return err
		}
		rec.add("end %d", n)
		return nil
	}))
	start(t, s)

	dispatch(t, s, testAction{kind: typePing, n: 1})
	dispatch(t, s, testAction{kind: typePing, n: 2})
	dispatch(t, s, testAction{kind: typePong})

	tasks, err := s.Tasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, StateSuspended, tasks[0].State)
	assert.Equal(t, string(typePing), tasks[0].Action)

	advance(t, s, 100*time.Millisecond)
	assert.Equal(t, []string{"start 1", "start 2", "end 1", "end 2"}, rec.list())

	history, err := s.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StateDone, history[0].State)
}

func TestScheduler_PutIsSchedulingPoint(t *testing.T) {
	s := newManual()
	rec := &recorder{}
	require.NoError(t, s.TakeEvery("publisher", action.Is(typePing), func(task *Task, _ action.Action) error {
		rec.add("publisher before")
		if err := task.Put(testAction{kind: typePong}); err != nil {
			return err
		}
		rec.add("publisher after")
		return nil
	}))
	require.NoError(t, s.TakeEvery("first", action.Is(typePong), func(task *Task, _ action.Action) error {
		rec.add("first")
		if err := task.Sleep(time.Second); err != nil {
			return err
		}
		rec.add("first woke")
		return nil
	}))
	require.NoError(t, s.TakeEvery("second", action.Is(typePong), func(*Task, action.Action) error {
		rec.add("second")
		return nil
	}))
	start(t, s)

	dispatch(t, s, testAction{kind: typePing})
	assert.Equal(t, []string{"publisher before", "first", "second", "publisher after"}, rec.list())
}

func TestScheduler_BodiesAreAtomicBetweenSuspensions(t *testing.T) {
	s := newManual()
	rec := &recorder{}
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, s.TakeEvery(name, action.Is(typePing), func(task *Task, _ action.Action) error {
			for i := 0; i < 3; i++ {
				rec.add("%s%d", name, i)
			}
			if err := task.Sleep(0); err != nil {
				return err
			}
			for i := 3; i < 6; i++ {
				rec.add("%s%d", name, i)
			}
			return nil
		}))
	}
	start(t, s)

	dispatch(t, s, testAction{kind: typePing})
	assert.Equal(t, []string{
		"a0", "a1", "a2", "b0", "b1", "b2",
		"a3", "a4", "a5", "b3", "b4", "b5",
	}, rec.list())
}

func TestScheduler_ManualClockOrdersTimers(t *testing.T) {
	s := newManual()
	rec := &recorder{}
	sleeper := func(name string, d time.Duration) Body {
		return func(task *Task) error {
			if err := task.Sleep(d); err != nil {
				return err
			}
			rec.add("%s@%s", name, task.Now().Sub(epoch))
			return nil
		}
	}
	require.NoError(t, s.Fork("late", sleeper("late", 300*time.Millisecond)))
	require.NoError(t, s.Fork("tie-1", sleeper("tie-1", 100*time.Millisecond)))
	require.NoError(t, s.Fork("tie-2", sleeper("tie-2", 100*time.Millisecond)))
	require.NoError(t, s.Fork("chain", func(task *Task) error {
		for i := 0; i < 2; i++ {
			if err := task.Sleep(150 * time.Millisecond); err != nil {
				return err
			}
		}
		rec.add("chain@%s", task.Now().Sub(epoch))
		return nil
	}))
	start(t, s)

	advance(t, s, 99*time.Millisecond)
	assert.Empty(t, rec.list())

	advance(t, s, 401*time.Millisecond)
	// late registered its 300ms timer before chain re-armed for the same deadline
	assert.Equal(t, []string{"tie-1@100ms", "tie-2@100ms", "late@300ms", "chain@300ms"}, rec.list())
	assert.Equal(t, epoch.Add(500*time.Millisecond), s.Now())
}

func TestScheduler_TakeSeesOnlyLaterActions(t *testing.T) {
	s := newManual()
	rec := &recorder{}
	require.NoError(t, s.TakeEvery("listener", action.Is(typePing), func(task *Task, _ action.Action) error {
		a, err := task.Take(action.Is(typePong))
		if err != nil {
			return err
		}
		rec.add("took %d", a.(testAction).n)
		return nil
	}))
	start(t, s)

	dispatch(t, s, testAction{kind: typePong, n: 0})
	dispatch(t, s, testAction{kind: typePing})
	dispatch(t, s, testAction{kind: typePong, n: 1})
	dispatch(t, s, testAction{kind: typePong, n: 2})
	assert.Equal(t, []string{"took 1"}, rec.list())
}

func TestScheduler_Value(t *testing.T) {
	s := newManual(WithValue("toaster", "stack"))
	var got any
	var found, missing bool
	require.NoError(t, s.Fork("reader", func(task *Task) error {
		got, found = task.Value("toaster")
		_, missing = task.Value("nope")
		return nil
	}))
	start(t, s)

	assert.True(t, found)
	assert.False(t, missing)
	assert.Equal(t, "stack", got)
}

func TestScheduler_CallRunsOffLoop(t *testing.T) {
	s := newManual()
	release := make(chan struct{})
	rec := &recorder{}
	require.NoError(t, s.Fork("io", func(task *Task) error {
		v, err := CallResult(task, func(ctx context.Context) (string, error) {
			<-release
			return "loaded", nil
		})
		if err != nil {
			return err
		}
		rec.add("io %s", v)
		return nil
	}))
	require.NoError(t, s.TakeEvery("other", action.Is(typePing), func(*Task, action.Action) error {
		rec.add("other")
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	dispatch(t, s, testAction{kind: typePing})
	assert.Equal(t, []string{"other"}, rec.list())

	close(release)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"other", "io loaded"}, rec.list())
}

func TestScheduler_CallPanicBecomesError(t *testing.T) {
	s := newManual()
	var callErr error
	require.NoError(t, s.Fork("io", func(task *Task) error {
		_, callErr = task.Call(func(context.Context) (any, error) { panic("kaboom") })
		return nil
	}))
	start(t, s)

	var panicErr *PanicError
	require.ErrorAs(t, callErr, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
}

func TestScheduler_FaultIsolation(t *testing.T) {
	s := newManual()
	rec := &recorder{}
	require.NoError(t, s.TakeEvery("panics", action.Is(typePing), func(*Task, action.Action) error {
		panic("boom")
	}))
	require.NoError(t, s.TakeEvery("errors", action.Is(typePing), func(*Task, action.Action) error {
		return errors.New("bad")
	}))
	require.NoError(t, s.TakeEvery("survivor", action.Is(typePing), func(task *Task, _ action.Action) error {
		if err := task.Sleep(10 * time.Millisecond); err != nil {
			return err
		}
		rec.add("survived")
		return nil
	}))
	start(t, s)

	dispatch(t, s, testAction{kind: typePing})
	advance(t, s, 10*time.Millisecond)
	assert.Equal(t, []string{"survived"}, rec.list())

	history, err := s.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "panics", history[0].Watcher)
	assert.Equal(t, StateFailed, history[0].State)
	assert.Contains(t, history[0].Error, "boom")
	assert.Equal(t, StateFailed, history[1].State)
	assert.Equal(t, "bad", history[1].Error)
	assert.Equal(t, StateDone, history[2].State)

	// the watchers keep working
	dispatch(t, s, testAction{kind: typePing})
	advance(t, s, 10*time.Millisecond)
	assert.Equal(t, []string{"survived", "survived"}, rec.list())
}

func TestScheduler_RegisterAfterRun(t *testing.T) {
	s := newManual()
	start(t, s)

	assert.ErrorIs(t, s.TakeEvery("late", action.Any(), func(*Task, action.Action) error { return nil }), ErrAlreadyRunning)
	assert.ErrorIs(t, s.Fork("late", func(*Task) error { return nil }), ErrAlreadyRunning)
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newManual()
	h := func(*Task, action.Action) error { return nil }
	assert.Error(t, s.TakeEvery("", action.Any(), h))
	assert.Error(t, s.TakeEvery("x", nil, h))
	assert.Error(t, s.TakeEvery("x", action.Any(), nil))
	require.NoError(t, s.TakeEvery("x", action.Any(), h))
	assert.Error(t, s.TakeLatest("x", action.Any(), h))
	assert.Error(t, s.Fork("", func(*Task) error { return nil }))

	watchers := s.Watchers()
	require.Len(t, watchers, 1)
	assert.Equal(t, WatcherInfo{Name: "x", Matcher: ">", Policy: "every"}, watchers[0])
}

func TestScheduler_AdvanceRequiresManualClock(t *testing.T) {
	s := New(WithLogger(logger.Discard()))
	assert.ErrorIs(t, s.Advance(context.Background(), time.Second), ErrNotManualClock)
}

func TestScheduler_WallClockSleep(t *testing.T) {
	s := New(WithLogger(logger.Discard()))
	woke := make(chan time.Duration, 1)
	require.NoError(t, s.Fork("sleeper", func(task *Task) error {
		begin := time.Now()
		if err := task.Sleep(20 * time.Millisecond); err != nil {
			return err
		}
		woke <- time.Since(begin)
		return nil
	}))
	start(t, s)

	select {
	case d := <-woke:
		assert.GreaterOrEqual(t, d, 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper never woke")
	}
}

func TestScheduler_StoppedAPI(t *testing.T) {
	s := newManual()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.NoError(t, s.Flush(context.Background()))
	cancel()
	require.NoError(t, <-done)

	<-s.Done()
	assert.ErrorIs(t, s.Dispatch(context.Background(), testAction{kind: typePing}), ErrStopped)
	assert.ErrorIs(t, s.Flush(context.Background()), ErrStopped)
	_, err := s.Tasks(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, s.Run(context.Background()), ErrStopped)
	assert.Error(t, s.Dispatch(context.Background(), nil))
}

func TestState_Transitions(t *testing.T) {
	assert.True(t, StatePending.CanTransitionTo(StateRunning))
	assert.True(t, StateRunning.CanTransitionTo(StateSuspended))
	assert.True(t, StateSuspended.CanTransitionTo(StateRunning))
	assert.False(t, StateSuspended.CanTransitionTo(StateDone))
	assert.False(t, StateDone.CanTransitionTo(StateRunning))
	assert.Error(t, ValidateTransition(StateCancelled, StateRunning))
	assert.True(t, StateFailed.IsTerminal())
	assert.Equal(t, "suspended", StateSuspended.String())

	text, err := StateCancelled.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "cancelled", string(text))
}
