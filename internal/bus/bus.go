package bus

import "context"

// Transport delivers session messages between sibling agent instances.
// Publish does not deliver to the publisher's own Subscribe channel.
type Transport interface {
	// Publish sends m to all sibling instances. Best-effort; an error means
	// no sibling may have observed the message.
	Publish(ctx context.Context, m Message) error
	// Subscribe returns a channel of messages from sibling instances. The
	// channel is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan Message, error)
	// Close releases transport resources. Idempotent.
	Close() error
}
