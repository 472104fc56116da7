package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOutInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []int

	_, err := b.Register(SubscriberFunc(func(context.Context, Event) error {
		order = append(order, 1)
		return nil
	}))
	require.NoError(t, err)
	_, err = b.Register(SubscriberFunc(func(context.Context, Event) error {
		order = append(order, 2)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), Event{Type: CycleStarted}))
	assert.Equal(t, []int{1, 2}, order)
}

func TestPublishStopsAtFirstError(t *testing.T) {
	b := NewBus()
	calledSecond := false

	_, _ = b.Register(SubscriberFunc(func(context.Context, Event) error {
		return errors.New("boom")
	}))
	_, _ = b.Register(SubscriberFunc(func(context.Context, Event) error {
		calledSecond = true
		return nil
	}))

	err := b.Publish(context.Background(), Event{Type: ToolScheduled})
	assert.Error(t, err)
	assert.False(t, calledSecond)
}

func TestRegisterNilSubscriberRejected(t *testing.T) {
	b := NewBus()
	_, err := b.Register(nil)
	assert.Error(t, err)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := NewBus()
	received := 0
	sub, err := b.Register(SubscriberFunc(func(context.Context, Event) error {
		received++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotent

	require.NoError(t, b.Publish(context.Background(), Event{Type: StateTransitioned}))
	assert.Equal(t, 0, received)
}
