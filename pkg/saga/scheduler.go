// Package saga implements the cooperative task scheduler.
//
// One loop goroutine owns the scheduling state. Every task body runs on its
// own goroutine, but the loop resumes exactly one body at a time and waits
// until it reaches its next suspension point (Sleep, Take, Receive, Call) or
// ends, so code between suspension points is atomic with respect to other
// tasks. Put is a scheduling point: every watcher and taker matching the put
// action runs to its next suspension point before the publisher continues.
//
// Task effects must only be called from the task's own body. The Scheduler
// methods taking a context are for other goroutines and must not be called
// from a task body.
package saga

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/eventbus"
	"github.com/goclaw/actiond/pkg/logger"
)

const defaultHistorySize = 100

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseStopped
)

// Option customizes Scheduler initialization.
type Option func(s *Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithValue supplies a named context value readable from every task.
func WithValue(name string, v any) Option {
	return func(s *Scheduler) {
		s.values[name] = v
	}
}

// WithManualClock selects virtual time starting at start. Time only moves
// with Advance.
func WithManualClock(start time.Time) Option {
	return func(s *Scheduler) {
		s.manual = true
		s.manualNow.Store(start.UnixNano())
	}
}

// WithHistorySize bounds the number of finished tasks kept for History.
func WithHistorySize(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.historySize = n
		}
	}
}

// WithBus makes the scheduler dispatch on bus instead of a private one.
func WithBus(bus *eventbus.Bus) Option {
	return func(s *Scheduler) {
		if bus != nil {
			s.bus = bus
		}
	}
}

type request struct {
	fn    func()
	flush bool
	done  chan struct{}
}

// yieldMsg is sent by a body when it suspends or ends.
type yieldMsg struct {
	task *Task
	eff  effect
	done bool
	err  error
}

// Scheduler runs watcher tasks over one ordered action stream.
type Scheduler struct {
	bus         *eventbus.Bus
	values      map[string]any
	log         logger.Logger
	manual      bool
	manualNow   atomic.Int64
	historySize int

	regMu    sync.Mutex
	phase    phase
	watchers []*watcher
	forks    []fork

	inbox   chan request
	yield   chan yieldMsg
	ready   *readyQueue
	stopped chan struct{}

	// Loop-owned.
	baseCtx    context.Context
	tasks      map[string]*Task
	serial     uint64
	timers     timerHeap
	timerOrder uint64
	calls      int
	flushers   []chan struct{}
	history    []TaskInfo
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		bus:         eventbus.New(),
		values:      make(map[string]any),
		log:         logger.Global(),
		historySize: defaultHistorySize,
		inbox:       make(chan request),
		yield:       make(chan yieldMsg),
		ready:       newReadyQueue(),
		stopped:     make(chan struct{}),
		tasks:       make(map[string]*Task),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With("component", "saga")
	return s
}

// Run starts dispatching and blocks until ctx is done. On shutdown every live
// task is cancelled and its cleanups run before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.regMu.Lock()
	switch s.phase {
	case phaseRunning:
		s.regMu.Unlock()
		return ErrAlreadyRunning
	case phaseStopped:
		s.regMu.Unlock()
		return ErrStopped
	}
	s.phase = phaseRunning
	watchers := s.watchers
	forks := s.forks
	s.regMu.Unlock()

	defer close(s.stopped)
	s.baseCtx = context.WithoutCancel(ctx)

	for _, w := range watchers {
		w := w
		s.bus.Subscribe(w.matcher, func(a action.Action) { s.spawnWatcher(w, a) })
	}
	s.log.Info("scheduler started", "watchers", len(watchers), "forks", len(forks), "manual_clock", s.manual)

	for _, f := range forks {
		s.start(s.newTask(f.name, nil, f.body, nil))
	}
	s.drain()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if !s.manual {
			if next := s.timers.peek(); next != nil {
				timer.Reset(time.Until(next.deadline))
				timerC = timer.C
			}
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case req := <-s.inbox:
			s.serve(req)
		case <-s.ready.wake:
			s.drain()
		case <-timerC:
			s.fireDue(time.Now())
			s.drain()
		}
		timer.Stop()
	}
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Now returns the scheduler time.
func (s *Scheduler) Now() time.Time {
	return s.clockNow()
}

// Dispatch publishes a on the bus and waits until every task it woke reached
// its next suspension point.
func (s *Scheduler) Dispatch(ctx context.Context, a action.Action) error {
	if a == nil {
		return fmt.Errorf("saga: cannot dispatch nil action")
	}
	return s.do(ctx, func() { s.publish(s.baseCtx, a) })
}

// Cancel cancels the live task with id.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	var err error
	if doErr := s.do(ctx, func() {
		t, ok := s.tasks[id]
		if !ok {
			err = ErrTaskNotFound
			return
		}
		err = s.cancelTask(t)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Advance moves a manual clock forward by d, firing due timers in deadline
// order, ties in registration order. Tasks run to their suspension points
// after each timer.
func (s *Scheduler) Advance(ctx context.Context, d time.Duration) error {
	if !s.manual {
		return ErrNotManualClock
	}
	if d < 0 {
		return fmt.Errorf("saga: cannot advance by negative duration %s", d)
	}
	return s.do(ctx, func() { s.advance(d) })
}

// Flush waits until no task is runnable and no Call is in flight.
func (s *Scheduler) Flush(ctx context.Context) error {
	req := request{flush: true, done: make(chan struct{})}
	return s.send(ctx, req)
}

// Tasks returns a snapshot of the live tasks in creation order.
func (s *Scheduler) Tasks(ctx context.Context) ([]TaskInfo, error) {
	var out []TaskInfo
	err := s.do(ctx, func() {
		live := s.liveTasks()
		out = make([]TaskInfo, 0, len(live))
		for _, t := range live {
			out = append(out, t.info())
		}
	})
	return out, err
}

// History returns the most recently finished tasks, oldest first.
func (s *Scheduler) History(ctx context.Context) ([]TaskInfo, error) {
	var out []TaskInfo
	err := s.do(ctx, func() {
		out = append([]TaskInfo(nil), s.history...)
	})
	return out, err
}

// NewChannel creates a channel not owned by any task.
func (s *Scheduler) NewChannel(buffer int) *Channel {
	return newChannel(s, buffer)
}

func (s *Scheduler) do(ctx context.Context, fn func()) error {
	return s.send(ctx, request{fn: fn, done: make(chan struct{})})
}

func (s *Scheduler) send(ctx context.Context, req request) error {
	select {
	case s.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

func (s *Scheduler) serve(req request) {
	if req.flush {
		s.flushers = append(s.flushers, req.done)
		s.notifyIdle()
		return
	}
	req.fn()
	s.drain()
	close(req.done)
}

// drain steps runnable tasks until the ready queue is empty.
func (s *Scheduler) drain() {
	for {
		r, ok := s.ready.pop()
		if !ok {
			break
		}
		s.resumeReady(r)
	}
	s.notifyIdle()
}

func (s *Scheduler) notifyIdle() {
	if len(s.flushers) == 0 || s.calls > 0 || s.ready.len() > 0 {
		return
	}
	for _, done := range s.flushers {
		close(done)
	}
	s.flushers = nil
}

func (s *Scheduler) resumeReady(r resumption) {
	if r.call {
		s.calls--
	}
	if !s.resumeWait(r.task, r.seq, r.msg) && r.onStale != nil {
		r.onStale()
	}
}

// resumeWait continues t if it is still suspended on the wait seq.
func (s *Scheduler) resumeWait(t *Task, seq uint64, msg resumeMsg) bool {
	if t.state != StateSuspended || t.waitSeq != seq {
		return false
	}
	t.release = nil
	s.step(t, msg)
	return true
}

// step hands control to t and handles its effects until it suspends or ends.
func (s *Scheduler) step(t *Task, msg resumeMsg) {
	for {
		s.transition(t, StateRunning)
		t.resume <- msg
		y := <-s.yield
		if y.task != t {
			panic(fmt.Sprintf("saga: task %s yielded while %s was running", y.task.id, t.id))
		}
		if y.done {
			s.finish(t, y.err)
			return
		}
		next, immediate := s.handle(t, y.eff)
		if !immediate {
			s.transition(t, StateSuspended)
			return
		}
		if t.cancelled && next.err == nil {
			next = resumeMsg{err: ErrCancelled}
		}
		msg = next
	}
}

func (s *Scheduler) handle(t *Task, eff effect) (resumeMsg, bool) {
	switch e := eff.(type) {
	case sleepEffect:
		if e.d <= 0 {
			seq := t.wait(nil)
			s.ready.push(resumption{task: t, seq: seq})
			return resumeMsg{}, false
		}
		s.timerOrder++
		entry := &timerEntry{deadline: s.clockNow().Add(e.d), order: s.timerOrder, task: t}
		entry.seq = t.wait(func() { s.timers.remove(entry) })
		heap.Push(&s.timers, entry)
		return resumeMsg{}, false

	case takeEffect:
		var seq uint64
		unsubscribe := s.bus.SubscribeOnce(e.matcher, func(a action.Action) {
			s.resumeWait(t, seq, resumeMsg{value: a})
		})
		seq = t.wait(unsubscribe)
		return resumeMsg{}, false

	case receiveEffect:
		ch := e.ch
		seq := t.wait(func() { ch.removeReceiver(t) })
		if msg, ok := ch.receive(t, seq); ok {
			t.release = nil
			return msg, true
		}
		return resumeMsg{}, false

	case putEffect:
		s.publish(t.ctx, e.action)
		return resumeMsg{}, true

	case callEffect:
		ctx, cancel := context.WithCancel(t.ctx)
		seq := t.wait(cancel)
		s.calls++
		go func() {
			defer cancel()
			v, err := invokeCall(ctx, e.fn)
			s.ready.push(resumption{task: t, seq: seq, msg: resumeMsg{value: v, err: err}, call: true})
		}()
		return resumeMsg{}, false

	case spawnEffect:
		child := s.newTask(e.name, nil, e.body, t)
		s.start(child)
		return resumeMsg{value: child}, true

	case cancelEffect:
		return resumeMsg{err: s.cancelTask(e.target)}, true

	default:
		return resumeMsg{err: fmt.Errorf("saga: unknown effect %T", eff)}, true
	}
}

func (s *Scheduler) publish(ctx context.Context, a action.Action) {
	_, span := sagaTracer().Start(ctx, spanSagaDispatch,
		trace.WithAttributes(attribute.String("saga.action", string(a.Type()))))
	defer span.End()

	metricsRecorder().RecordDispatch(string(a.Type()))
	delivered := s.bus.Publish(a)
	span.SetAttributes(attribute.Int("saga.subscribers", delivered))
}

func (s *Scheduler) newTask(name string, trigger action.Action, body Body, parent *Task) *Task {
	id := uuid.NewString()
	ctx := s.baseCtx
	if parent != nil {
		ctx = parent.ctx
	}
	attrs := []attribute.KeyValue{
		attribute.String("saga.watcher", name),
		attribute.String("saga.task_id", id),
	}
	logArgs := []any{"watcher", name, "task_id", id}
	if trigger != nil {
		attrs = append(attrs, attribute.String("saga.action", string(trigger.Type())))
	}
	if parent != nil {
		logArgs = append(logArgs, "parent_id", parent.id)
	}
	ctx, span := sagaTracer().Start(ctx, spanSagaTask, trace.WithAttributes(attrs...))

	s.serial++
	t := &Task{
		id:      id,
		name:    name,
		trigger: trigger,
		s:       s,
		ctx:     ctx,
		span:    span,
		body:    body,
		log:     s.log.With(logArgs...),
		resume:  make(chan resumeMsg),
		serial:  s.serial,
		created: s.clockNow(),
		state:   StatePending,
	}
	s.tasks[id] = t
	return t
}

func (s *Scheduler) start(t *Task) {
	metricsRecorder().RecordTaskStarted(t.name)
	metricsRecorder().SetLiveTasks(len(s.tasks))
	go t.run()
	s.step(t, resumeMsg{})
}

// cancelTask releases the pending suspension of t and resumes it with
// ErrCancelled. A task in the running chain observes cancellation when its
// current effect returns.
func (s *Scheduler) cancelTask(t *Task) error {
	if t == nil {
		return ErrTaskNotFound
	}
	if t.state.IsTerminal() || t.cancelled {
		return nil
	}
	t.cancelled = true
	t.span.AddEvent("cancelled")
	if t.state != StateSuspended {
		return nil
	}
	t.waitSeq++
	if t.release != nil {
		t.release()
		t.release = nil
	}
	s.step(t, resumeMsg{err: ErrCancelled})
	return nil
}

func (s *Scheduler) finish(t *Task, err error) {
	next := StateDone
	switch {
	case err != nil && !(t.cancelled && errors.Is(err, ErrCancelled)):
		next = StateFailed
	case t.cancelled:
		next = StateCancelled
	}
	s.transition(t, next)
	t.err = err
	finished := s.clockNow()
	t.finished = &finished

	switch next {
	case StateFailed:
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			t.log.Error("task panicked", "error", err, "stack", string(panicErr.Stack))
		} else {
			t.log.Error("task failed", "error", err)
		}
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	case StateCancelled:
		t.log.Debug("task cancelled")
	default:
		t.log.Debug("task done")
	}
	t.span.SetAttributes(attribute.String("saga.state", next.String()))
	t.span.End()

	delete(s.tasks, t.id)
	metricsRecorder().RecordTaskFinished(t.name, next.String(), finished.Sub(t.created))
	metricsRecorder().SetLiveTasks(len(s.tasks))

	if s.historySize > 0 {
		s.history = append(s.history, t.info())
		if len(s.history) > s.historySize {
			s.history = s.history[len(s.history)-s.historySize:]
		}
	}
}

func (s *Scheduler) transition(t *Task, next State) {
	if err := ValidateTransition(t.state, next); err != nil {
		t.log.Error("unexpected task transition", "error", err)
	}
	t.state = next
}

func (s *Scheduler) fireDue(now time.Time) {
	for {
		next := s.timers.peek()
		if next == nil || next.deadline.After(now) {
			return
		}
		heap.Pop(&s.timers)
		s.ready.push(resumption{task: next.task, seq: next.seq})
	}
}

func (s *Scheduler) advance(d time.Duration) {
	target := s.clockNow().Add(d)
	for {
		next := s.timers.peek()
		if next == nil || next.deadline.After(target) {
			break
		}
		s.manualNow.Store(next.deadline.UnixNano())
		s.fireDue(next.deadline)
		s.drain()
	}
	s.manualNow.Store(target.UnixNano())
}

func (s *Scheduler) shutdown() {
	s.regMu.Lock()
	s.phase = phaseStopped
	s.regMu.Unlock()

	live := s.liveTasks()
	for _, t := range live {
		_ = s.cancelTask(t)
	}
	for _, done := range s.flushers {
		close(done)
	}
	s.flushers = nil
	s.log.Info("scheduler stopped", "cancelled", len(live))
}

func (s *Scheduler) liveTasks() []*Task {
	live := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		live = append(live, t)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].serial < live[j].serial })
	return live
}

func (s *Scheduler) clockNow() time.Time {
	if s.manual {
		return time.Unix(0, s.manualNow.Load()).UTC()
	}
	return time.Now()
}
