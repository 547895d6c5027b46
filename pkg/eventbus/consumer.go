package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goclaw/actiond/pkg/action"
)

const defaultDedupWindow = 4096

// EnvelopeConsumer validates and decodes envelopes and suppresses duplicate deliveries.
// Duplicates are detected by event id within a bounded window of recent ids.
type EnvelopeConsumer struct {
	codec  *action.Codec
	window int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewEnvelopeConsumer creates a consumer decoding payloads with codec.
// A window <= 0 selects the default.
func NewEnvelopeConsumer(codec *action.Codec, window int) *EnvelopeConsumer {
	if codec == nil {
		codec = action.DefaultCodec()
	}
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &EnvelopeConsumer{
		codec:  codec,
		window: window,
		seen:   make(map[string]struct{}, window),
	}
}

// DecodeAndValidate decodes raw envelope bytes, validates them and decodes the
// carried action. duplicate is true when the event id was already consumed; the
// action is nil in that case.
func (c *EnvelopeConsumer) DecodeAndValidate(raw []byte) (envelope Envelope, a action.Action, duplicate bool, err error) {
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, nil, false, fmt.Errorf("eventbus: invalid envelope json: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return Envelope{}, nil, false, err
	}

	if !c.remember(envelope.EventID) {
		return envelope, nil, true, nil
	}

	a, err = c.codec.Decode(envelope.Payload)
	if err != nil {
		return Envelope{}, nil, false, err
	}
	if a.Type() != envelope.ActionType {
		return Envelope{}, nil, false, fmt.Errorf("eventbus: envelope type %s does not match payload type %s", envelope.ActionType, a.Type())
	}
	return envelope, a, false, nil
}

// remember records id and reports whether it was new.
func (c *EnvelopeConsumer) remember(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.seen[id]; exists {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > c.window {
		delete(c.seen, c.order[0])
		c.order = c.order[1:]
	}
	return true
}
