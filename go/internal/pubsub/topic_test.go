package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic_PublishInOrder(t *testing.T) {
	topic := NewTopic[int]("test")
	var got []string

	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })

	topic.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestTopic_Unsubscribe(t *testing.T) {
	topic := NewTopic[string]("test")
	calls := 0

	unsubscribe := topic.Subscribe(func(string) { calls++ })
	topic.Publish("first")
	unsubscribe()
	unsubscribe()
	topic.Publish("second")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, topic.Len())
}

func TestTopic_PanickingSubscriberDoesNotBreakDelivery(t *testing.T) {
	topic := NewTopic[int]("test")
	var received []int

	topic.Subscribe(func(int) { panic("boom") })
	topic.Subscribe(func(v int) { received = append(received, v) })

	assert.NotPanics(t, func() {
		topic.Publish(1)
		topic.Publish(2)
	})
	assert.Equal(t, []int{1, 2}, received)
}

func TestTopic_SubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[int]("test")
	lateCalls := 0

	topic.Subscribe(func(int) {
		topic.Subscribe(func(int) { lateCalls++ })
	})

	topic.Publish(1)
	assert.Equal(t, 0, lateCalls, "subscriber added mid-publish waits for the next value")

	topic.Publish(2)
	assert.Equal(t, 1, lateCalls)
}
