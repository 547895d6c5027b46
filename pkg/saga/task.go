package saga

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/logger"
)

var errBodyExited = errors.New("saga: task body exited without returning")

type effect any

type (
	sleepEffect   struct{ d time.Duration }
	takeEffect    struct{ matcher action.Matcher }
	receiveEffect struct{ ch *Channel }
	putEffect     struct{ action action.Action }
	callEffect    struct {
		fn func(ctx context.Context) (any, error)
	}
	spawnEffect struct {
		name string
		body Body
	}
	cancelEffect struct{ target *Task }
)

// Task is one running instance of a watcher, fork or spawned body.
type Task struct {
	id      string
	name    string
	trigger action.Action
	s       *Scheduler
	ctx     context.Context
	span    trace.Span
	body    Body
	log     logger.Logger
	resume  chan resumeMsg
	serial  uint64
	created time.Time

	// Loop-owned. The body only reads cancelled, after a handoff.
	state     State
	waitSeq   uint64
	release   func()
	cancelled bool
	finished  *time.Time
	err       error

	// Body-owned until the task ends.
	ending   bool
	defers   []func()
	channels []*Channel
}

// ID returns the unique task id.
func (t *Task) ID() string { return t.id }

// Name returns the watcher, fork or spawn name.
func (t *Task) Name() string { return t.name }

// Action returns the action that started a watcher instance, nil otherwise.
func (t *Task) Action() action.Action { return t.trigger }

// Context returns the task context carrying its trace span.
func (t *Task) Context() context.Context { return t.ctx }

// Logger returns a logger tagged with the task identity.
func (t *Task) Logger() logger.Logger { return t.log }

// Now returns the scheduler time.
func (t *Task) Now() time.Time { return t.s.clockNow() }

// Cancelled reports whether the task was cancelled.
func (t *Task) Cancelled() bool { return t.cancelled }

// Value looks up a named context value. It never suspends.
func (t *Task) Value(name string) (any, bool) {
	v, ok := t.s.values[name]
	return v, ok
}

// Defer registers fn to run when the task ends, whether it completed, was
// cancelled or failed. Deferred functions run last in first out.
func (t *Task) Defer(fn func()) {
	if fn != nil {
		t.defers = append(t.defers, fn)
	}
}

// NewChannel creates a channel owned by the task. It is closed when the task ends.
func (t *Task) NewChannel(buffer int) *Channel {
	ch := newChannel(t.s, buffer)
	t.channels = append(t.channels, ch)
	return ch
}

// Sleep suspends the task for d. A non-positive d yields to other runnable tasks.
func (t *Task) Sleep(d time.Duration) error {
	_, err := t.do(sleepEffect{d: d})
	return err
}

// Take suspends until an action matching m is published after the call.
func (t *Task) Take(m action.Matcher) (action.Action, error) {
	if m == nil {
		return nil, fmt.Errorf("saga: take matcher cannot be nil")
	}
	v, err := t.do(takeEffect{matcher: m})
	if err != nil {
		return nil, err
	}
	return v.(action.Action), nil
}

// Receive suspends until a value is available on ch. It returns
// ErrChannelClosed once ch is closed and drained.
func (t *Task) Receive(ch *Channel) (any, error) {
	if ch == nil {
		return nil, fmt.Errorf("saga: receive channel cannot be nil")
	}
	return t.do(receiveEffect{ch: ch})
}

// Put publishes a. Every watcher and taker matching a runs to its next
// suspension point before Put returns.
func (t *Task) Put(a action.Action) error {
	if a == nil {
		return fmt.Errorf("saga: cannot put nil action")
	}
	_, err := t.do(putEffect{action: a})
	return err
}

// Call runs fn on its own goroutine and suspends the task until it returns.
// ctx is cancelled when the task is cancelled.
func (t *Task) Call(fn func(ctx context.Context) (any, error)) (any, error) {
	if fn == nil {
		return nil, fmt.Errorf("saga: call function cannot be nil")
	}
	return t.do(callEffect{fn: fn})
}

// CallResult is Call with a typed result.
func CallResult[T any](t *Task, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, fmt.Errorf("saga: call function cannot be nil")
	}
	v, err := t.Call(func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("saga: call returned %T", v)
	}
	return out, nil
}

// Spawn starts a detached task. It runs to its first suspension point before
// Spawn returns.
func (t *Task) Spawn(name string, body Body) (*Task, error) {
	if body == nil {
		return nil, fmt.Errorf("saga: spawn %s: body cannot be nil", name)
	}
	v, err := t.do(spawnEffect{name: name, body: body})
	if err != nil {
		return nil, err
	}
	return v.(*Task), nil
}

// Cancel cancels another task. Cancelling itself makes every further effect
// return ErrCancelled.
func (t *Task) Cancel(other *Task) error {
	if other == nil {
		return ErrTaskNotFound
	}
	_, err := t.do(cancelEffect{target: other})
	return err
}

func (t *Task) do(eff effect) (any, error) {
	if t.ending {
		return nil, ErrTaskEnded
	}
	if t.cancelled {
		return nil, ErrCancelled
	}
	t.s.yield <- yieldMsg{task: t, eff: eff}
	msg := <-t.resume
	return msg.value, msg.err
}

// wait starts a new suspension. release undoes it on cancellation.
func (t *Task) wait(release func()) uint64 {
	t.waitSeq++
	t.release = release
	return t.waitSeq
}

func (t *Task) run() {
	<-t.resume
	err := errBodyExited
	defer func() {
		t.ending = true
		t.runDefers()
		for _, ch := range t.channels {
			ch.Close()
		}
		t.s.yield <- yieldMsg{task: t, done: true, err: err}
	}()
	err = t.invoke()
}

func (t *Task) invoke() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.body(t)
}

func (t *Task) runDefers() {
	for i := len(t.defers) - 1; i >= 0; i-- {
		func(fn func()) {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error("deferred cleanup panicked", "panic", r)
				}
			}()
			fn()
		}(t.defers[i])
	}
	t.defers = nil
}

func (t *Task) info() TaskInfo {
	info := TaskInfo{
		ID:         t.id,
		Watcher:    t.name,
		State:      t.state,
		CreatedAt:  t.created,
		FinishedAt: t.finished,
	}
	if t.trigger != nil {
		info.Action = string(t.trigger.Type())
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

func invokeCall(ctx context.Context, fn func(ctx context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}
