package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestPublishFansOut(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	a, c := b.Subscribe(), b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(NewEvent(EventFloodSeeded, "flood seeded at node 0", map[string]string{"origin": "0"}))

	for _, sub := range []Subscriber{a, c} {
		e := receive(t, sub)
		assert.Equal(t, EventFloodSeeded, e.Type)
		assert.Equal(t, "0", e.Metadata["origin"])
	}
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Publish(&Event{Type: EventCubeReady})

	e := receive(t, sub)
	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.False(t, e.Timestamp.IsZero())
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Zero(t, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Stop()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(NewEvent(EventGatherCompleted, "", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stopped broker")
	}
}

func TestNilBrokerPublish(t *testing.T) {
	var b *Broker
	assert.NotPanics(t, func() { b.Publish(NewEvent(EventCubeStopped, "", nil)) })
}
