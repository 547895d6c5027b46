package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goclaw/actiond/pkg/action"
)

// Transport publishes bytes to a subject.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Telemetry records remote publish behavior.
type Telemetry interface {
	RecordPublish(status string)
	RecordRetry()
	SetDegradedMode(active bool)
	RecordOutage()
	RecordRecovery()
}

type nopTelemetry struct{}

func (nopTelemetry) RecordPublish(status string) {}
func (nopTelemetry) RecordRetry()                {}
func (nopTelemetry) SetDegradedMode(active bool) {}
func (nopTelemetry) RecordOutage()               {}
func (nopTelemetry) RecordRecovery()             {}

// RetryConfig controls retry/backoff behavior for publish attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2,
	}
}

// Validate checks the retry policy.
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("eventbus: max retries cannot be negative")
	}
	if r.InitialBackoff <= 0 || r.MaxBackoff <= 0 || r.BackoffFactor < 1 {
		return fmt.Errorf("eventbus: invalid retry config")
	}
	return nil
}

// Publish statuses passed to Telemetry.RecordPublish.
const (
	PublishSuccess = "success"
	PublishFailed  = "failed"
)

// Publisher publishes actions as envelopes on the outbound subjects.
type Publisher struct {
	transport Transport
	nodeID    string
	prefix    string
	retry     RetryConfig
	telemetry Telemetry

	mu        sync.Mutex
	sequences map[string]int64
	degraded  bool
}

// NewPublisher creates an action publisher.
func NewPublisher(nodeID, prefix string, transport Transport, retry RetryConfig, telemetry Telemetry) (*Publisher, error) {
	switch {
	case nodeID == "":
		return nil, fmt.Errorf("eventbus: node id cannot be empty")
	case transport == nil:
		return nil, fmt.Errorf("eventbus: transport cannot be nil")
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}
	if telemetry == nil {
		telemetry = nopTelemetry{}
	}
	return &Publisher{
		transport: transport,
		nodeID:    nodeID,
		prefix:    prefix,
		retry:     retry,
		telemetry: telemetry,
		sequences: make(map[string]int64),
	}, nil
}

// PublishAction publishes a on its outbound subject. Envelopes are ordered
// per action type.
func (p *Publisher) PublishAction(ctx context.Context, a action.Action) (Envelope, error) {
	return p.PublishActionTo(ctx, DirectionOutbound, a)
}

// PublishActionTo publishes a on the subject of dir. Tools feeding a node use
// DirectionInbound.
func (p *Publisher) PublishActionTo(ctx context.Context, dir Direction, a action.Action) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	if a == nil {
		return Envelope{}, fmt.Errorf("eventbus: action cannot be nil")
	}

	key := string(a.Type())
	env, err := BuildEnvelope(BuildEnvelopeInput{
		Action:      a,
		NodeID:      p.nodeID,
		OrderingKey: key,
		Sequence:    p.nextSequence(key),
	})
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	if err := p.send(ctx, ActionSubject(p.prefix, dir, a.Type()), body); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// send tries the transport until it succeeds or the retry budget is spent.
// Any failed attempt marks the bus degraded; a success clears it.
func (p *Publisher) send(ctx context.Context, subject string, body []byte) error {
	wait := p.retry.InitialBackoff
	for attempt := 0; ; attempt++ {
		err := p.transport.Publish(ctx, subject, body)
		if err == nil {
			p.telemetry.RecordPublish(PublishSuccess)
			p.setDegraded(false)
			return nil
		}
		p.setDegraded(true)
		if attempt >= p.retry.MaxRetries {
			p.telemetry.RecordPublish(PublishFailed)
			return fmt.Errorf("eventbus: publish failed after %d attempts: %w", attempt+1, err)
		}
		p.telemetry.RecordRetry()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(time.Duration(float64(wait)*p.retry.BackoffFactor), p.retry.MaxBackoff)
	}
}

// Degraded reports whether the last publish attempt failed.
func (p *Publisher) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *Publisher) nextSequence(key string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequences[key]++
	return p.sequences[key]
}

// setDegraded records outage and recovery edges only.
func (p *Publisher) setDegraded(degraded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.degraded == degraded {
		return
	}
	p.degraded = degraded
	p.telemetry.SetDegradedMode(degraded)
	if degraded {
		p.telemetry.RecordOutage()
	} else {
		p.telemetry.RecordRecovery()
	}
}
