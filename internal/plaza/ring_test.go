// ABOUTME: Tests for the fixed-capacity message ring.
// ABOUTME: Covers the capacity bound, recency ordering, and limit clamping.

package plaza

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoralabs/plaza/internal/protocol"
)

func ringEnv(i int) *protocol.Envelope {
	return &protocol.Envelope{Type: protocol.TypeHeartbeat, MessageID: fmt.Sprintf("m-%d", i)}
}

func TestRing_RecentOrdering(t *testing.T) {
	r := newMessageRing(10)
	for i := 0; i < 5; i++ {
		r.append(ringEnv(i))
	}

	got := r.recent(3)
	require.Len(t, got, 3)
	assert.Equal(t, "m-4", got[0].MessageID)
	assert.Equal(t, "m-3", got[1].MessageID)
	assert.Equal(t, "m-2", got[2].MessageID)
}

func TestRing_CapacityBound(t *testing.T) {
	r := newMessageRing(4)
	for i := 0; i < 10; i++ {
		r.append(ringEnv(i))
	}

	got := r.recent(100)
	require.Len(t, got, 4, "ring must never hold more than its capacity")
	assert.Equal(t, "m-9", got[0].MessageID)
	assert.Equal(t, "m-6", got[3].MessageID)
}

func TestRing_LimitClamping(t *testing.T) {
	r := newMessageRing(8)
	r.append(ringEnv(0))

	assert.Len(t, r.recent(5), 1)
	assert.Empty(t, r.recent(0))
	assert.Empty(t, r.recent(-1))
}

func TestRing_Empty(t *testing.T) {
	r := newMessageRing(8)
	assert.Empty(t, r.recent(10))
}
