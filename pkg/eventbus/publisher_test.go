package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/actiond/pkg/action"
)

type flakyTransport struct {
	bus       *MemoryTransport
	failCount atomic.Int32
}

func (t *flakyTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if t.failCount.Load() > 0 {
		t.failCount.Add(-1)
		return errors.New("simulated redis outage")
	}
	return t.bus.Publish(ctx, subject, payload)
}

type telemetryProbe struct {
	outages    atomic.Int32
	recoveries atomic.Int32
	retries    atomic.Int32
	failed     atomic.Int32
}

func (p *telemetryProbe) RecordPublish(status string) {
	if status == PublishFailed {
		p.failed.Add(1)
	}
}
func (p *telemetryProbe) RecordRetry()                { p.retries.Add(1) }
func (p *telemetryProbe) SetDegradedMode(active bool) {}
func (p *telemetryProbe) RecordOutage()               { p.outages.Add(1) }
func (p *telemetryProbe) RecordRecovery()             { p.recoveries.Add(1) }

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestPublisher_PublishConsumeOrderingAndDedup(t *testing.T) {
	transport := NewMemoryTransport()
	ctx := context.Background()
	sub, err := transport.Subscribe(ctx, DirectionWildcardSubject("", DirectionOutbound), 16)
	require.NoError(t, err)
	defer sub.Close()

	publisher, err := NewPublisher("node-1", "", transport, DefaultRetryConfig(), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := publisher.PublishAction(ctx, action.MpyDidFailToCompile{Err: "line " + string(rune('1'+i))})
		require.NoError(t, err)
	}

	consumer := NewEnvelopeConsumer(nil, 0)
	var firstRaw []byte
	sequences := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case msg := <-sub.C():
			assert.Equal(t, "actiond.v1.out.mpy.action.didFailToCompile", msg.Subject)
			if firstRaw == nil {
				firstRaw = msg.Payload
			}
			envelope, a, duplicate, err := consumer.DecodeAndValidate(msg.Payload)
			require.NoError(t, err)
			require.False(t, duplicate)
			assert.Equal(t, "node-1", envelope.NodeID)
			assert.Equal(t, action.TypeMpyDidFailToCompile, a.Type())
			sequences = append(sequences, envelope.Sequence)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, sequences)

	_, a, duplicate, err := consumer.DecodeAndValidate(firstRaw)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Nil(t, a)
}

func TestPublisher_DegradedModeOutageRecovery(t *testing.T) {
	transport := &flakyTransport{bus: NewMemoryTransport()}
	transport.failCount.Store(4)
	telemetry := &telemetryProbe{}

	publisher, err := NewPublisher("node-1", "", transport, fastRetry(), telemetry)
	require.NoError(t, err)

	_, err = publisher.PublishAction(context.Background(), action.EditorReloadProgram{})
	require.Error(t, err)
	assert.True(t, publisher.Degraded())
	assert.Equal(t, int32(1), telemetry.outages.Load())
	assert.Equal(t, int32(2), telemetry.retries.Load())
	assert.Equal(t, int32(1), telemetry.failed.Load())

	// one failure left, the retry succeeds and clears degraded mode
	_, err = publisher.PublishAction(context.Background(), action.EditorReloadProgram{})
	require.NoError(t, err)
	assert.False(t, publisher.Degraded())
	assert.Equal(t, int32(1), telemetry.recoveries.Load())
}

func TestPublisher_ContextCancelledDuringBackoff(t *testing.T) {
	transport := &flakyTransport{bus: NewMemoryTransport()}
	transport.failCount.Store(100)
	publisher, err := NewPublisher("node-1", "", transport, RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
		BackoffFactor:  1,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = publisher.PublishAction(ctx, action.EditorReloadProgram{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewPublisher_Validation(t *testing.T) {
	transport := NewMemoryTransport()
	_, err := NewPublisher("", "", transport, DefaultRetryConfig(), nil)
	assert.Error(t, err)
	_, err = NewPublisher("node", "", nil, DefaultRetryConfig(), nil)
	assert.Error(t, err)
	_, err = NewPublisher("node", "", transport, RetryConfig{MaxRetries: -1}, nil)
	assert.Error(t, err)
	_, err = NewPublisher("node", "", transport, RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffFactor: 0.5}, nil)
	assert.Error(t, err)
}

func TestEnvelopeConsumer_Rejects(t *testing.T) {
	consumer := NewEnvelopeConsumer(nil, 0)

	_, _, _, err := consumer.DecodeAndValidate([]byte("{not json"))
	assert.Error(t, err)

	_, _, _, err = consumer.DecodeAndValidate([]byte(`{"event_id":"e1"}`))
	assert.Error(t, err)

	envelope, err := BuildEnvelope(BuildEnvelopeInput{Action: action.AppReload{}, NodeID: "n", Sequence: 1})
	require.NoError(t, err)
	envelope.ActionType = action.TypeAppDidStart
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	_, _, _, err = consumer.DecodeAndValidate(raw)
	assert.ErrorContains(t, err, "does not match")

	envelope.SchemaVersion = "v9"
	raw, err = json.Marshal(envelope)
	require.NoError(t, err)
	_, _, _, err = consumer.DecodeAndValidate(raw)
	assert.ErrorContains(t, err, "unsupported schema version")
}

func TestEnvelopeConsumer_DedupWindow(t *testing.T) {
	consumer := NewEnvelopeConsumer(nil, 2)
	raws := make([][]byte, 3)
	for i := range raws {
		envelope, err := BuildEnvelope(BuildEnvelopeInput{Action: action.AppDidStart{}, NodeID: "n", Sequence: int64(i + 1)})
		require.NoError(t, err)
		raws[i], err = json.Marshal(envelope)
		require.NoError(t, err)
	}
	for _, raw := range raws {
		_, _, duplicate, err := consumer.DecodeAndValidate(raw)
		require.NoError(t, err)
		require.False(t, duplicate)
	}

	// the oldest id fell out of the window
	_, _, duplicate, err := consumer.DecodeAndValidate(raws[0])
	require.NoError(t, err)
	assert.False(t, duplicate)

	_, _, duplicate, err = consumer.DecodeAndValidate(raws[2])
	require.NoError(t, err)
	assert.True(t, duplicate)
}
