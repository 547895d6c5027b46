package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/logger"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	got []action.Action
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a action.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, a)
	return nil
}

func (d *recordingDispatcher) actions() []action.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]action.Action(nil), d.got...)
}

func startBridge(t *testing.T, transport RemoteTransport, dispatcher Dispatcher) *Bridge {
	t.Helper()
	bridge, err := NewBridge(transport, dispatcher, BridgeConfig{
		NodeID:   "node-a",
		Outbound: []string{string(action.TypeEditorReloadProgram)},
		Retry:    fastRetry(),
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("bridge did not stop")
		}
	})
	return bridge
}

func TestBridge_InboundDispatchWithDedup(t *testing.T) {
	transport := NewMemoryTransport()
	dispatcher := &recordingDispatcher{}
	startBridge(t, transport, dispatcher)

	// the bridge subscribes asynchronously
	require.Eventually(t, func() bool {
		transport.mu.RLock()
		defer transport.mu.RUnlock()
		return len(transport.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	envelope, err := BuildEnvelope(BuildEnvelopeInput{
		Action:   action.BleDidFailToConnect{Reason: action.BleFailNoGatt},
		NodeID:   "node-b",
		Sequence: 1,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)

	subject := ActionSubject("", DirectionInbound, envelope.ActionType)
	require.NoError(t, transport.Publish(context.Background(), subject, raw))
	require.NoError(t, transport.Publish(context.Background(), subject, raw))
	require.NoError(t, transport.Publish(context.Background(), subject, []byte("garbage")))

	require.Eventually(t, func() bool { return len(dispatcher.actions()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	got := dispatcher.actions()
	require.Len(t, got, 1)
	assert.Equal(t, action.BleDidFailToConnect{Reason: action.BleFailNoGatt}, got[0])
}

func TestBridge_ForwardOnlyOutboundTypes(t *testing.T) {
	transport := NewMemoryTransport()
	sub, err := transport.Subscribe(context.Background(), DirectionWildcardSubject("", DirectionOutbound), 8)
	require.NoError(t, err)
	defer sub.Close()

	bridge := startBridge(t, transport, &recordingDispatcher{})
	assert.True(t, bridge.Matcher().Match(action.TypeEditorReloadProgram))
	assert.False(t, bridge.Forward(action.AppReload{}))
	assert.True(t, bridge.Forward(action.EditorReloadProgram{}))

	select {
	case msg := <-sub.C():
		var envelope Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, action.TypeEditorReloadProgram, envelope.ActionType)
		assert.Equal(t, "node-a", envelope.NodeID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for forwarded action")
	}
	assert.False(t, bridge.Degraded())
}

func TestNewBridge_Validation(t *testing.T) {
	_, err := NewBridge(nil, &recordingDispatcher{}, BridgeConfig{NodeID: "n"})
	assert.Error(t, err)
	_, err = NewBridge(NewMemoryTransport(), nil, BridgeConfig{NodeID: "n"})
	assert.Error(t, err)
	_, err = NewBridge(NewMemoryTransport(), &recordingDispatcher{}, BridgeConfig{})
	assert.Error(t, err)
}
