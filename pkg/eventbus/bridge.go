package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/logger"
)

// Dispatcher accepts actions arriving from remote nodes.
type Dispatcher interface {
	Dispatch(ctx context.Context, a action.Action) error
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	NodeID      string
	Prefix      string
	Outbound    []string // subject patterns over action types forwarded to the remote bus
	QueueSize   int
	DedupWindow int
	Retry       RetryConfig
	Telemetry   Telemetry
	Codec       *action.Codec
	Logger      logger.Logger
}

// Bridge connects the local action stream to a remote transport. Inbound
// envelopes are decoded and handed to the Dispatcher; outbound actions queued
// with Forward are published in the background.
type Bridge struct {
	transport  RemoteTransport
	dispatcher Dispatcher
	publisher  *Publisher
	consumer   *EnvelopeConsumer
	outbound   []action.Matcher
	prefix     string
	nodeID     string
	log        logger.Logger

	queue chan action.Action

	mu      sync.Mutex
	running bool
}

// NewBridge creates a bridge.
func NewBridge(transport RemoteTransport, dispatcher Dispatcher, cfg BridgeConfig) (*Bridge, error) {
	if transport == nil {
		return nil, fmt.Errorf("eventbus: transport cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("eventbus: dispatcher cannot be nil")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	publisher, err := NewPublisher(cfg.NodeID, cfg.Prefix, transport, cfg.Retry, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	outbound := make([]action.Matcher, 0, len(cfg.Outbound))
	for _, p := range cfg.Outbound {
		if p == "" {
			continue
		}
		outbound = append(outbound, action.Pattern(p))
	}
	return &Bridge{
		transport:  transport,
		dispatcher: dispatcher,
		publisher:  publisher,
		consumer:   NewEnvelopeConsumer(cfg.Codec, cfg.DedupWindow),
		outbound:   outbound,
		prefix:     cfg.Prefix,
		nodeID:     cfg.NodeID,
		log:        cfg.Logger.With("component", "eventbus.bridge", "node_id", cfg.NodeID),
		queue:      make(chan action.Action, cfg.QueueSize),
	}, nil
}

// Outbound reports whether actions of type t are forwarded.
func (b *Bridge) Outbound(t action.Type) bool {
	for _, m := range b.outbound {
		if m.Match(t) {
			return true
		}
	}
	return false
}

// Matcher returns a matcher over the forwarded action types.
func (b *Bridge) Matcher() action.Matcher {
	return action.MatcherFunc(b.Outbound)
}

// Forward queues a for publishing. It never blocks; when the queue is full the
// action is dropped and false is returned.
func (b *Bridge) Forward(a action.Action) bool {
	if a == nil || !b.Outbound(a.Type()) {
		return false
	}
	select {
	case b.queue <- a:
		return true
	default:
		b.log.Warn("remote forward queue full, dropping action", "action", a.Type())
		return false
	}
}

// Degraded reports whether outbound publishing is currently failing.
func (b *Bridge) Degraded() bool {
	return b.publisher.Degraded()
}

// Run consumes inbound envelopes and publishes queued outbound actions until
// ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("eventbus: bridge already running")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	sub, err := b.transport.Subscribe(ctx, DirectionWildcardSubject(b.prefix, DirectionInbound), 0)
	if err != nil {
		return fmt.Errorf("eventbus: subscribe inbound: %w", err)
	}
	defer sub.Close()

	b.log.Info("remote bridge started", "inbound", DirectionWildcardSubject(b.prefix, DirectionInbound))
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-b.queue:
			if _, err := b.publisher.PublishAction(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Error("forward action failed", "action", a.Type(), "error", err)
			}
		case msg, ok := <-sub.C():
			if !ok {
				return fmt.Errorf("eventbus: inbound subscription closed")
			}
			b.consume(ctx, msg)
		}
	}
}

func (b *Bridge) consume(ctx context.Context, msg Message) {
	envelope, a, duplicate, err := b.consumer.DecodeAndValidate(msg.Payload)
	if err != nil {
		b.log.Warn("dropping invalid remote envelope", "subject", msg.Subject, "error", err)
		return
	}
	if duplicate {
		b.log.Debug("dropping duplicate remote envelope", "event_id", envelope.EventID)
		return
	}
	if err := b.dispatcher.Dispatch(ctx, a); err != nil {
		b.log.Warn("dispatch remote action failed", "action", a.Type(), "event_id", envelope.EventID, "error", err)
	}
}
