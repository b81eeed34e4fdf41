// ABOUTME: Read-only snapshot accessors for dashboards and the REST surface.
// ABOUTME: Point-in-time consistent under the same mutex as message dispatch.

package plaza

import (
	"sort"

	"github.com/agoralabs/plaza/internal/protocol"
)

// DefaultMessageLimit bounds the recent-messages query when the caller does
// not supply a limit.
const DefaultMessageLimit = 100

// Agents returns a snapshot of every registered agent card, ordered by
// registration time then id for stable output.
func (h *Hub) Agents() []protocol.AgentCard {
	h.mu.Lock()
	defer h.mu.Unlock()

	cards := make([]protocol.AgentCard, 0, len(h.agents))
	for _, sess := range h.agents {
		cards = append(cards, sess.card)
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].RegisteredAt != cards[j].RegisteredAt {
			return cards[i].RegisteredAt < cards[j].RegisteredAt
		}
		return cards[i].ID < cards[j].ID
	})
	return cards
}

// Tasks returns a snapshot of every task the hub has seen, ordered by
// creation time then id. Tasks are never deleted for the life of the process.
func (h *Hub) Tasks() []protocol.Task {
	h.mu.Lock()
	defer h.mu.Unlock()

	tasks := make([]protocol.Task, 0, len(h.tasks))
	for _, t := range h.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt < tasks[j].CreatedAt
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// Messages returns up to limit logged envelopes, most recent first.
// A non-positive limit uses DefaultMessageLimit.
func (h *Hub) Messages(limit int) []*protocol.Envelope {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.recent(limit)
}
