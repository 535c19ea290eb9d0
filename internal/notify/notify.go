// Package notify is a small pubsub event bus used to fan out cache
// invalidation across a process, adapted from the teacher's
// services/notification/local.go wrapper around github.com/cskr/pubsub.
package notify

import "github.com/cskr/pubsub"

const (
	TopicUserChanged  = "user_changed"
	TopicGroupChanged = "group_changed"
)

// Bus publishes invalidation events; capacity is the pubsub backlog per
// topic, matching the teacher's LocalNotificationService constructor.
type Bus struct {
	ps *pubsub.PubSub
}

func NewBus(capacity int) *Bus {
	return &Bus{ps: pubsub.New(capacity)}
}

// Publish sends id on topic to every current subscriber.
func (b *Bus) Publish(topic, id string) {
	b.ps.Pub(id, topic)
}

// Subscribe returns a channel of ids published to topic.
func (b *Bus) Subscribe(topic string) chan any {
	return b.ps.Sub(topic)
}

// Unsubscribe detaches ch from topic.
func (b *Bus) Unsubscribe(ch chan any, topic string) {
	b.ps.Unsub(ch, topic)
}

// Close shuts down the bus, closing every subscriber channel.
func (b *Bus) Close() {
	b.ps.Shutdown()
}
