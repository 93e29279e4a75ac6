package engine

import (
	"sync"

	"github.com/nexuslabs/nexus-go/core"
)

// DefaultHistoryLimit is the number of turns carried into each model call.
const DefaultHistoryLimit = 6

// Conversation holds the rolling window of recent turns for one session.
// It is safe for concurrent use.
type Conversation struct {
	mu    sync.Mutex
	turns []core.Message
	limit int
}

// NewConversation creates an empty conversation keeping the last limit turns.
// A non-positive limit uses DefaultHistoryLimit.
func NewConversation(limit int) *Conversation {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Conversation{limit: limit}
}

// Messages returns a copy of the retained turns, oldest first.
func (c *Conversation) Messages() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]core.Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Append records one exchange and drops the oldest turns beyond the limit.
func (c *Conversation) Append(userText, assistantText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns,
		core.NewUserMessage(userText),
		core.NewAssistantMessage(assistantText),
	)
	if over := len(c.turns) - c.limit; over > 0 {
		c.turns = append([]core.Message(nil), c.turns[over:]...)
	}
}

// Len returns the number of retained turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset drops all turns.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}
