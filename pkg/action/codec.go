package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goclaw/actiond/pkg/logger"
)

// ErrUnknownType is returned when decoding an action type with no registered decoder.
var ErrUnknownType = errors.New("action: unknown type")

// Wire is the JSON document form of an action.
type Wire struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decoder decodes the payload of one action type.
type Decoder func(payload json.RawMessage) (Action, error)

// Codec routes wire documents to type-specific decoders.
type Codec struct {
	mu       sync.RWMutex
	decoders map[Type]Decoder
	validate *validator.Validate
}

// NewCodec creates an empty codec.
func NewCodec() *Codec {
	return &Codec{
		decoders: make(map[Type]Decoder),
		validate: validator.New(),
	}
}

// DefaultCodec returns a codec that knows every inbound action of this package.
func DefaultCodec() *Codec {
	c := NewCodec()
	c.MustRegister(TypeAppReload, empty(AppReload{}))
	c.MustRegister(TypeAppDidStart, empty(AppDidStart{}))
	c.MustRegister(TypeEditorStorageChanged, payloadOf[EditorStorageChanged](c))
	c.MustRegister(TypeEditorReloadProgram, empty(EditorReloadProgram{}))
	c.MustRegister(TypeMpyDidFailToCompile, payloadOf[MpyDidFailToCompile](c))
	c.MustRegister(TypeNotificationAdd, payloadOf[NotificationAdd](c))
	c.MustRegister(TypeServiceWorkerDidUpdate, empty(ServiceWorkerDidUpdate{}))
	c.MustRegister(TypeServiceWorkerDidSucceed, empty(ServiceWorkerDidSucceed{}))
	c.MustRegister(TypeBleDidFailToConnect, func(raw json.RawMessage) (Action, error) {
		var a BleDidFailToConnect
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		if !a.Reason.Valid() {
			logger.Warn("unrecognized ble failure reason, treating as unknown", "reason", a.Reason)
			a.Reason = BleFailUnknown
		}
		return a, nil
	})
	c.MustRegister(TypeBootloaderDidFailToConnect, func(raw json.RawMessage) (Action, error) {
		var a BootloaderDidFailToConnect
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		if !a.Reason.Valid() {
			logger.Warn("unrecognized bootloader failure reason, treating as unknown", "reason", a.Reason)
			a.Reason = BootloaderFailUnknown
		}
		return a, nil
	})
	return c
}

// Register adds a decoder for t.
func (c *Codec) Register(t Type, decoder Decoder) error {
	if t == "" {
		return fmt.Errorf("action: type is required")
	}
	if decoder == nil {
		return fmt.Errorf("action: decoder cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.decoders[t]; exists {
		return fmt.Errorf("action: decoder for %q already registered", t)
	}
	c.decoders[t] = decoder
	return nil
}

// MustRegister is Register that panics on error.
func (c *Codec) MustRegister(t Type, decoder Decoder) {
	if err := c.Register(t, decoder); err != nil {
		panic(err)
	}
}

// Types lists the registered types in sorted order.
func (c *Codec) Types() []Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Type, 0, len(c.decoders))
	for t := range c.decoders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode decodes a wire JSON document.
func (c *Codec) Decode(raw []byte) (Action, error) {
	var w Wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("action: invalid json: %w", err)
	}
	return c.DecodeWire(w)
}

// DecodeWire decodes an already parsed wire document.
func (c *Codec) DecodeWire(w Wire) (Action, error) {
	if w.Type == "" {
		return nil, fmt.Errorf("action: type is required")
	}
	c.mu.RLock()
	decoder := c.decoders[w.Type]
	c.mu.RUnlock()
	if decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, w.Type)
	}
	a, err := decoder(w.Payload)
	if err != nil {
		return nil, fmt.Errorf("action: decode %s: %w", w.Type, err)
	}
	return a, nil
}

// Encode encodes an action to its wire JSON document.
func Encode(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("action: cannot encode nil action")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("action: marshal payload: %w", err)
	}
	return json.Marshal(Wire{Type: a.Type(), Payload: payload})
}

func empty(a Action) Decoder {
	return func(json.RawMessage) (Action, error) { return a, nil }
}

func payloadOf[T Action](c *Codec) Decoder {
	return func(raw json.RawMessage) (Action, error) {
		var a T
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		if err := c.validate.Struct(a); err != nil {
			return nil, err
		}
		return a, nil
	}
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
