package bus

import (
	"context"
	"sync"
)

// Hub is an in-process broadcast fabric. Each Endpoint attached to the hub
// receives every message published by the other endpoints, but never its own,
// matching broadcast-channel semantics.
type Hub struct {
	mu        sync.Mutex
	endpoints map[*Endpoint]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{endpoints: make(map[*Endpoint]struct{})}
}

// Endpoint attaches a new endpoint to the hub.
func (h *Hub) Endpoint() *Endpoint {
	e := &Endpoint{hub: h, inbox: make(chan Message, 16)}
	h.mu.Lock()
	h.endpoints[e] = struct{}{}
	h.mu.Unlock()
	return e
}

func (h *Hub) broadcast(from *Endpoint, m Message) {
	h.mu.Lock()
	targets := make([]*Endpoint, 0, len(h.endpoints))
	for e := range h.endpoints {
		if e != from {
			targets = append(targets, e)
		}
	}
	h.mu.Unlock()
	for _, e := range targets {
		// At-most-once: a full inbox drops the message instead of blocking.
		select {
		case e.inbox <- m:
		default:
		}
	}
}

func (h *Hub) detach(e *Endpoint) {
	h.mu.Lock()
	delete(h.endpoints, e)
	h.mu.Unlock()
}

// Endpoint is one attachment to a Hub, implementing Transport.
type Endpoint struct {
	hub    *Hub
	inbox  chan Message
	closed sync.Once
}

// Publish broadcasts m to every other endpoint on the hub.
func (e *Endpoint) Publish(ctx context.Context, m Message) error {
	e.hub.broadcast(e, m)
	return nil
}

// Subscribe returns the endpoint's inbox. Messages published by this endpoint
// never appear on it.
func (e *Endpoint) Subscribe(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-e.inbox:
				if !ok {
					return
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close detaches the endpoint from the hub.
func (e *Endpoint) Close() error {
	e.closed.Do(func() {
		e.hub.detach(e)
		close(e.inbox)
	})
	return nil
}
