// ABOUTME: Fixed-capacity ring buffer over inbound envelopes.
// ABOUTME: The transparency log served by the query surface; never persisted.

package plaza

import "github.com/agoralabs/plaza/internal/protocol"

// messageRing retains the most recent envelopes up to a fixed capacity.
// This is an observability aid, not a durability mechanism. Not safe for
// concurrent use; the hub's mutex guards it.
type messageRing struct {
	buf   []*protocol.Envelope
	head  int // next write position
	count int
}

func newMessageRing(capacity int) *messageRing {
	if capacity < 1 {
		capacity = 1
	}
	return &messageRing{buf: make([]*protocol.Envelope, capacity)}
}

// append records an envelope, dropping the oldest once full.
func (r *messageRing) append(env *protocol.Envelope) {
	r.buf[r.head] = env
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// recent returns up to limit envelopes, most recent first. A non-positive
// limit returns nothing.
func (r *messageRing) recent(limit int) []*protocol.Envelope {
	if limit <= 0 {
		return nil
	}
	if limit > r.count {
		limit = r.count
	}
	out := make([]*protocol.Envelope, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
