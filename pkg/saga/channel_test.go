package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_ExternalPutResumesReceiver(t *testing.T) {
	s := newManual()
	ch := s.NewChannel(1)
	rec := &recorder{}
	require.NoError(t, s.Fork("receiver", func(task *Task) error {
		for {
			v, err := task.Receive(ch)
			if err != nil {
				rec.add("receive: %v", err)
				return nil
			}
			rec.add("got %v", v)
		}
	}))
	start(t, s)

	require.NoError(t, ch.Put("a"))
	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, ch.Put("b"))
	require.NoError(t, s.Flush(context.Background()))
	ch.Close()
	require.NoError(t, s.Flush(context.Background()))

	assert.Equal(t, []string{"got a", "got b", "receive: saga: channel closed"}, rec.list())
	assert.ErrorIs(t, ch.Put("c"), ErrChannelClosed)
}

func TestChannel_BufferAndClose(t *testing.T) {
	s := newManual()
	ch := s.NewChannel(1)
	require.NoError(t, ch.Put(1))
	assert.ErrorIs(t, ch.Put(2), ErrChannelFull)
	assert.Equal(t, 1, ch.Len())

	ch.Close()
	ch.Close()
	assert.True(t, ch.Closed())

	var got []any
	var last error
	require.NoError(t, s.Fork("drain", func(task *Task) error {
		for {
			v, err := task.Receive(ch)
			if err != nil {
				last = err
				return nil
			}
			got = append(got, v)
		}
	}))
	start(t, s)

	assert.Equal(t, []any{1}, got)
	assert.ErrorIs(t, last, ErrChannelClosed)
}

func TestChannel_UnbufferedPutWithoutReceiver(t *testing.T) {
	s := newManual()
	ch := s.NewChannel(0)
	assert.ErrorIs(t, ch.Put("x"), ErrChannelFull)
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_ValueForCancelledReceiverIsKept(t *testing.T) {
	s := newManual()
	ch := s.NewChannel(1)
	var receiver *Task
	var receiveErr error
	require.NoError(t, s.Fork("receiver", func(task *Task) error {
		receiver = task
		_, receiveErr = task.Receive(ch)
		return receiveErr
	}))
	require.NoError(t, s.Fork("sender", func(task *Task) error {
		if err := ch.Put("click"); err != nil {
			return err
		}
		return task.Cancel(receiver)
	}))
	start(t, s)

	assert.ErrorIs(t, receiveErr, ErrCancelled)
	assert.Equal(t, 1, ch.Len())
}

func TestChannel_TaskOwnedChannelClosesWithTask(t *testing.T) {
	s := newManual()
	var owned *Channel
	require.NoError(t, s.Fork("owner", func(task *Task) error {
		owned = task.NewChannel(2)
		return owned.Put("left over")
	}))
	start(t, s)

	require.NotNil(t, owned)
	assert.True(t, owned.Closed())
	assert.ErrorIs(t, owned.Put("late"), ErrChannelClosed)
}
