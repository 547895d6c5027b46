package action

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/actiond/pkg/toast"
)

func TestCodec_DecodeKnownTypes(t *testing.T) {
	codec := DefaultCodec()
	tests := []struct {
		raw  string
		want Action
	}{
		{`{"type":"app.action.reload"}`, AppReload{}},
		{`{"type":"editor.action.storageChanged","payload":{"source":"fs"}}`, EditorStorageChanged{Source: "fs"}},
		{`{"type":"mpy.action.didFailToCompile","payload":{"err":"bad"}}`, MpyDidFailToCompile{Err: "bad"}},
		{`{"type":"bleDevice.action.didFailToConnect","payload":{"reason":"noService"}}`, BleDidFailToConnect{Reason: BleFailNoService}},
		{`{"type":"bootloader.action.connection.didFailToConnect","payload":{"reason":"gattServiceNotFound"}}`, BootloaderDidFailToConnect{Reason: BootloaderFailGattServiceNotFound}},
		{`{"type":"notification.action.add","payload":{"level":"info","message":"hi"}}`, NotificationAdd{Level: toast.LevelInfo, Message: "hi"}},
		{`{"type":"serviceWorker.action.didSucceed"}`, ServiceWorkerDidSucceed{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.want.Type()), func(t *testing.T) {
			got, err := codec.Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodec_UnrecognizedReasonsBecomeUnknown(t *testing.T) {
	codec := DefaultCodec()

	ble, err := codec.Decode([]byte(`{"type":"bleDevice.action.didFailToConnect","payload":{"reason":"laser","err":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, BleDidFailToConnect{Reason: BleFailUnknown, Err: "x"}, ble)

	boot, err := codec.Decode([]byte(`{"type":"bootloader.action.connection.didFailToConnect","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, BootloaderFailUnknown, boot.(BootloaderDidFailToConnect).Reason)
}

func TestCodec_Errors(t *testing.T) {
	codec := DefaultCodec()

	_, err := codec.Decode([]byte(`{`))
	assert.Error(t, err)

	_, err = codec.Decode([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	_, err = codec.Decode([]byte(`{"type":"nope.action.unknown"}`))
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = codec.Decode([]byte(`{"type":"notification.action.add","payload":{"level":"fatal","message":"x"}}`))
	assert.Error(t, err)

	_, err = codec.Decode([]byte(`{"type":"notification.action.add","payload":{"level":"info","message":"x","helpUrl":"not a url"}}`))
	assert.Error(t, err)
}

func TestCodec_Register(t *testing.T) {
	codec := NewCodec()
	assert.Error(t, codec.Register("", func(json.RawMessage) (Action, error) { return AppReload{}, nil }))
	assert.Error(t, codec.Register(TypeAppReload, nil))
	require.NoError(t, codec.Register(TypeAppReload, empty(AppReload{})))
	assert.Error(t, codec.Register(TypeAppReload, empty(AppReload{})))
	assert.Panics(t, func() { codec.MustRegister(TypeAppReload, empty(AppReload{})) })
	assert.Equal(t, []Type{TypeAppReload}, codec.Types())
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	codec := DefaultCodec()
	in := NotificationAdd{Level: toast.LevelError, Message: "boom", HelpURL: "https://example.com/help"}

	raw, err := Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification.action.add","payload":{"level":"error","message":"boom","helpUrl":"https://example.com/help"}}`, string(raw))

	out, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestMatchers(t *testing.T) {
	assert.True(t, Is(TypeAppReload).Match(TypeAppReload))
	assert.False(t, Is(TypeAppReload).Match(TypeAppDidStart))
	assert.True(t, Is(TypeAppReload, TypeAppDidStart).Match(TypeAppDidStart))
	assert.Equal(t, "app.action.didStart|app.action.reload", Is(TypeAppReload, TypeAppDidStart).String())

	assert.True(t, Pattern("bleDevice.>").Match(TypeBleDidFailToConnect))
	assert.False(t, Pattern("bleDevice.>").Match(TypeBootloaderDidFailToConnect))
	assert.True(t, Pattern("*.action.reload").Match(TypeAppReload))
	assert.False(t, Pattern("*.action").Match(TypeAppReload))
	assert.True(t, Any().Match(TypeMpyDidFailToCompile))
	assert.False(t, Any().Match(""))

	m := MatcherFunc(func(t Type) bool { return t == TypeAppReload })
	assert.True(t, m.Match(TypeAppReload))
	assert.Equal(t, "func", m.String())
}

func TestReasonValid(t *testing.T) {
	assert.True(t, BleFailNoGatt.Valid())
	assert.False(t, BleFailReason("").Valid())
	assert.True(t, BootloaderFailGattServiceNotFound.Valid())
	assert.False(t, BootloaderFailReason("noService").Valid())
}
