package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/actiond/pkg/action"
)

const (
	// SchemaVersionV1 is the initial remote action schema.
	SchemaVersionV1 = "v1"
)

// Envelope wraps an action for delivery between processes.
type Envelope struct {
	EventID       string          `json:"event_id"`
	ActionType    action.Type     `json:"action_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	NodeID        string          `json:"node_id"`
	OrderingKey   string          `json:"ordering_key"`
	Sequence      int64           `json:"sequence"`
	Payload       json.RawMessage `json:"payload"`
}

// BuildEnvelopeInput is used to construct a new envelope.
type BuildEnvelopeInput struct {
	Action        action.Action
	SchemaVersion string
	NodeID        string
	OrderingKey   string
	Sequence      int64
}

// BuildEnvelope creates an envelope with a generated event id. The payload is
// the action wire document.
func BuildEnvelope(input BuildEnvelopeInput) (Envelope, error) {
	if input.Action == nil {
		return Envelope{}, fmt.Errorf("eventbus: action is required")
	}
	if input.NodeID == "" {
		return Envelope{}, fmt.Errorf("eventbus: node id is required")
	}
	if input.OrderingKey == "" {
		input.OrderingKey = string(input.Action.Type())
	}
	if input.Sequence <= 0 {
		return Envelope{}, fmt.Errorf("eventbus: sequence must be > 0")
	}
	if input.SchemaVersion == "" {
		input.SchemaVersion = SchemaVersionV1
	}

	payload, err := action.Encode(input.Action)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: encode action: %w", err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		ActionType:    input.Action.Type(),
		Timestamp:     time.Now().UTC(),
		SchemaVersion: input.SchemaVersion,
		NodeID:        input.NodeID,
		OrderingKey:   input.OrderingKey,
		Sequence:      input.Sequence,
		Payload:       payload,
	}, nil
}

// Validate checks the identity and ordering fields of a received envelope.
func (e Envelope) Validate() error {
	if e.EventID == "" || e.ActionType == "" || e.SchemaVersion == "" {
		return fmt.Errorf("eventbus: missing required envelope fields")
	}
	if e.NodeID == "" || e.OrderingKey == "" || e.Sequence <= 0 {
		return fmt.Errorf("eventbus: missing required identity/ordering fields")
	}
	if e.SchemaVersion != SchemaVersionV1 {
		return fmt.Errorf("eventbus: unsupported schema version %q", e.SchemaVersion)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("eventbus: empty payload")
	}
	return nil
}
