package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/actiond/pkg/action"
)

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	bus := New()
	var got []string
	bus.Subscribe(action.Any(), func(action.Action) { got = append(got, "first") })
	bus.Subscribe(action.Is(action.TypeMpyDidFailToCompile), func(action.Action) { got = append(got, "second") })
	bus.Subscribe(action.Is(action.TypeAppReload), func(action.Action) { got = append(got, "skipped") })
	bus.Subscribe(action.Pattern("mpy.>"), func(action.Action) { got = append(got, "third") })

	n := bus.Publish(action.MpyDidFailToCompile{Err: "boom"})
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestBus_SubscribeOnceRemovedBeforeHandler(t *testing.T) {
	bus := New()
	calls := 0
	bus.SubscribeOnce(action.Is(action.TypeAppReload), func(a action.Action) {
		calls++
		// re-entrant publish must not reach the once handler again
		bus.Publish(a)
	})
	require.Equal(t, 1, bus.Len())

	bus.Publish(action.AppReload{})
	bus.Publish(action.AppReload{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_NonMatchingKeepsOnceSubscription(t *testing.T) {
	bus := New()
	var got action.Action
	bus.SubscribeOnce(action.Is(action.TypeAppReload), func(a action.Action) { got = a })

	bus.Publish(action.AppDidStart{})
	assert.Nil(t, got)
	assert.Equal(t, 1, bus.Len())

	bus.Publish(action.AppReload{})
	assert.Equal(t, action.AppReload{}, got)
}

func TestBus_LateSubscriberDoesNotSeeCurrentAction(t *testing.T) {
	bus := New()
	lateCalls := 0
	bus.Subscribe(action.Any(), func(action.Action) {
		bus.Subscribe(action.Any(), func(action.Action) { lateCalls++ })
	})

	bus.Publish(action.AppDidStart{})
	assert.Equal(t, 0, lateCalls)

	bus.Publish(action.AppDidStart{})
	assert.Equal(t, 1, lateCalls)
}

func TestBus_UnsubscribeDuringPublishSkipsRemoved(t *testing.T) {
	bus := New()
	var unsubscribeSecond func()
	secondCalls := 0
	bus.Subscribe(action.Any(), func(action.Action) { unsubscribeSecond() })
	unsubscribeSecond = bus.Subscribe(action.Any(), func(action.Action) { secondCalls++ })

	bus.Publish(action.AppDidStart{})
	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, 1, bus.Len())

	// idempotent
	unsubscribeSecond()
	assert.Equal(t, 1, bus.Len())
}

func TestBus_PublishNil(t *testing.T) {
	bus := New()
	bus.Subscribe(action.Any(), func(action.Action) { t.Fatal("unexpected delivery") })
	assert.Equal(t, 0, bus.Publish(nil))
}
