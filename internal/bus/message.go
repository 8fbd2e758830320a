// Package bus synchronizes session lifecycle events across sibling agent
// instances sharing a session. Delivery is at-most-once and best-effort:
// a lost activity message only makes a sibling's timer fire slightly early,
// which the user can correct by extending.
package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags a session bus message.
type Kind string

const (
	// KindActivity announces accepted user activity on the publishing instance.
	KindActivity Kind = "activity"
	// KindLogout announces a terminal logout; receivers expire locally and
	// must not re-broadcast.
	KindLogout Kind = "logout"
	// KindExtend announces an explicit "stay signed in" action; receivers
	// clear their warning state.
	KindExtend Kind = "extend"
)

// Message is one session bus event. Transient, never persisted beyond the
// fallback key overwrite.
type Message struct {
	Kind Kind `json:"kind"`
	// At is the activity timestamp for activity messages.
	At time.Time `json:"at,omitempty"`
	// Reason is the logout reason for logout messages (idle, absolute, manual).
	Reason string `json:"reason,omitempty"`
	// Origin identifies the publishing instance so store-fallback receivers
	// can drop their own writes.
	Origin string `json:"origin,omitempty"`
	// Nonce disambiguates successive identical payloads on the fallback key.
	Nonce string `json:"nonce,omitempty"`
}

// Encode marshals m to its wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire payload. Malformed payloads and unknown kinds return
// an error; callers ignore such messages silently rather than failing.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("bus: decode: %w", err)
	}
	switch m.Kind {
	case KindActivity, KindLogout, KindExtend:
		return m, nil
	default:
		return Message{}, fmt.Errorf("bus: unknown message kind %q", m.Kind)
	}
}
