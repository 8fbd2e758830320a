// Package statestore provides the durable per-deployment key/value store the
// session agent keeps its markers in: the session-start timestamp, the bus
// fallback message, and the post-authentication grace marker. A store write
// is itself an observable event to sibling agents watching the same key.
package statestore

import "context"

// Well-known keys. Values are strings; timestamps are RFC3339Nano.
const (
	// KeySessionStartedAt holds the session-start timestamp. Cleared on logout
	// so a restart after sign-out does not resurrect the absolute clock.
	KeySessionStartedAt = "session_started_at"
	// KeyBusFallback holds the most recent session bus message, overwritten on
	// every publish. Agents without a broadcast transport watch this key.
	KeyBusFallback = "session_bus_fallback"
	// KeyPostAuthGrace holds the timestamp at which the post-authentication
	// grace window began. Cleared once grace elapses or is consumed.
	KeyPostAuthGrace = "post_auth_grace"
)

// Store is a durable key/value store with change notification. Writes are
// last-write-wins; concurrent writers can race and the lost update is not
// detected or surfaced.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// Watch returns a channel that receives the value after each observed
	// change to key. The channel is closed when ctx is done. Delivery is
	// at-most-once per change; rapid successive writes may coalesce.
	Watch(ctx context.Context, key string) (<-chan string, error)
}
