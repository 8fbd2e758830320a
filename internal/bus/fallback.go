package bus

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"rights-console-portal/agent/internal/statestore"
)

// StoreTransport is the durable-store fallback transport: each publish
// overwrites the shared fallback key, and sibling instances observe the
// write through the store's change notification. Last write wins; two
// near-simultaneous publishes can lose one message, which is tolerated.
type StoreTransport struct {
	store  statestore.Store
	origin string
}

// NewStoreTransport returns a transport writing to store's fallback key.
// origin identifies this instance; it is stamped on published messages so
// the instance's own writes are dropped on receipt.
func NewStoreTransport(store statestore.Store, origin string) *StoreTransport {
	if origin == "" {
		origin = uuid.New().String()
	}
	return &StoreTransport{store: store, origin: origin}
}

// Origin returns the instance identifier stamped on published messages.
func (t *StoreTransport) Origin() string { return t.origin }

// Publish overwrites the fallback key with m. The nonce makes successive
// identical messages distinguishable to watchers.
func (t *StoreTransport) Publish(ctx context.Context, m Message) error {
	m.Origin = t.origin
	m.Nonce = uuid.New().String()
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return t.store.Put(ctx, statestore.KeyBusFallback, string(data))
}

// Subscribe watches the fallback key and emits decoded messages from other
// instances. Undecodable payloads and this instance's own writes are
// silently ignored.
func (t *StoreTransport) Subscribe(ctx context.Context) (<-chan Message, error) {
	values, err := t.store.Watch(ctx, statestore.KeyBusFallback)
	if err != nil {
		return nil, err
	}
	out := make(chan Message, 16)
	go func() {
		defer close(out)
		for v := range values {
			m, err := Decode([]byte(v))
			if err != nil {
				continue
			}
			if m.Origin == t.origin {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the underlying store is owned by the caller.
func (t *StoreTransport) Close() error { return nil }

// Tee publishes to a primary broadcast transport and the store fallback
// simultaneously, and merges their subscriptions. A nil primary degrades
// silently to the fallback path only, with no functional loss beyond
// latency.
type Tee struct {
	primary  Transport
	fallback Transport
}

// NewTee combines primary and fallback. fallback must be non-nil; primary
// may be nil when no broadcast transport is available.
func NewTee(primary, fallback Transport) *Tee {
	return &Tee{primary: primary, fallback: fallback}
}

// Publish sends m on both paths. Failures on either path are logged and do
// not fail the other; an error is returned only when every path failed.
func (t *Tee) Publish(ctx context.Context, m Message) error {
	var firstErr error
	published := false
	if t.primary != nil {
		if err := t.primary.Publish(ctx, m); err != nil {
			log.Printf("bus: primary publish failed: %v", err)
			firstErr = err
		} else {
			published = true
		}
	}
	if err := t.fallback.Publish(ctx, m); err != nil {
		log.Printf("bus: fallback publish failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		published = true
	}
	if published {
		return nil
	}
	return firstErr
}

// Subscribe merges messages from both paths. A message published on both
// paths is normally delivered twice; receivers treat all messages as
// idempotent so the duplicate is harmless.
func (t *Tee) Subscribe(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, 16)
	var wg sync.WaitGroup

	forward := func(in <-chan Message) {
		defer wg.Done()
		for m := range in {
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}

	if t.primary != nil {
		in, err := t.primary.Subscribe(ctx)
		if err != nil {
			log.Printf("bus: primary subscribe failed, store fallback only: %v", err)
		} else {
			wg.Add(1)
			go forward(in)
		}
	}
	in, err := t.fallback.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	wg.Add(1)
	go forward(in)

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Close closes both paths.
func (t *Tee) Close() error {
	var firstErr error
	if t.primary != nil {
		if err := t.primary.Close(); err != nil {
			firstErr = err
		}
	}
	if err := t.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
