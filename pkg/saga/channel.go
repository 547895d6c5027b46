package saga

import "sync"

type receiver struct {
	task *Task
	seq  uint64
}

// Channel is a point-to-point FIFO bridging external triggers, such as a
// toast button click, back into a suspended task.
//
// Put and Close may be called from any goroutine, including from inside a
// task body. Neither blocks or runs task code; resumptions are queued to the
// scheduler loop.
type Channel struct {
	s    *Scheduler
	size int

	mu        sync.Mutex
	buf       []any
	receivers []receiver
	closed    bool
}

func newChannel(s *Scheduler, buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{s: s, size: buffer}
}

// Put hands v to the oldest waiting receiver, or buffers it. It returns
// ErrChannelFull when nobody waits and the buffer is full, and
// ErrChannelClosed after Close.
func (c *Channel) Put(v any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if len(c.receivers) > 0 {
		r := c.receivers[0]
		c.receivers = c.receivers[1:]
		c.mu.Unlock()
		c.deliver(r, v)
		return nil
	}
	if len(c.buf) >= c.size {
		c.mu.Unlock()
		return ErrChannelFull
	}
	c.buf = append(c.buf, v)
	c.mu.Unlock()
	return nil
}

// Close closes the channel and releases every waiting receiver with
// ErrChannelClosed. Buffered values stay receivable. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiting := c.receivers
	c.receivers = nil
	c.mu.Unlock()

	for _, r := range waiting {
		c.s.ready.push(resumption{task: r.task, seq: r.seq, msg: resumeMsg{err: ErrChannelClosed}})
	}
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of buffered values.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *Channel) deliver(r receiver, v any) {
	c.s.ready.push(resumption{
		task:    r.task,
		seq:     r.seq,
		msg:     resumeMsg{value: v},
		onStale: func() { c.requeue(v) },
	})
}

// receive is called on the loop. It returns an immediate result, or registers
// t as a receiver and reports false.
func (c *Channel) receive(t *Task, seq uint64) (resumeMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) > 0 {
		v := c.buf[0]
		c.buf[0] = nil
		c.buf = c.buf[1:]
		return resumeMsg{value: v}, true
	}
	if c.closed {
		return resumeMsg{err: ErrChannelClosed}, true
	}
	c.receivers = append(c.receivers, receiver{task: t, seq: seq})
	return resumeMsg{}, false
}

func (c *Channel) removeReceiver(t *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.receivers {
		if r.task == t {
			c.receivers = append(c.receivers[:i], c.receivers[i+1:]...)
			return
		}
	}
}

// requeue returns a value whose receiver was cancelled before it resumed.
func (c *Channel) requeue(v any) {
	c.mu.Lock()
	if len(c.receivers) > 0 {
		r := c.receivers[0]
		c.receivers = c.receivers[1:]
		c.mu.Unlock()
		c.deliver(r, v)
		return
	}
	c.buf = append([]any{v}, c.buf...)
	c.mu.Unlock()
}
