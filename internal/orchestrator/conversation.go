package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
	At      time.Time
}

// Conversation holds a bounded turn history. A conversation is owned by
// at most one in-flight request; independent conversations run
// concurrently without shared state.
type Conversation struct {
	ID string

	mu       sync.Mutex
	turns    []Turn
	maxTurns int
	busy     bool
}

// NewConversation creates a conversation retaining at most maxTurns
// turns, oldest evicted first.
func NewConversation(maxTurns int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &Conversation{
		ID:       uuid.NewString(),
		maxTurns: maxTurns,
	}
}

// acquire marks the conversation as owned by a request.
func (c *Conversation) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Conversation) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// AddTurn appends a turn, evicting the oldest when past capacity.
func (c *Conversation) AddTurn(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{Role: role, Content: content, At: time.Now()})
	if len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
}

// Len returns the number of retained turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Recent returns the content of the most recent n turns, oldest first.
func (c *Conversation) Recent(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.turns) {
		n = len(c.turns)
	}
	out := make([]string, 0, n)
	for _, turn := range c.turns[len(c.turns)-n:] {
		out = append(out, turn.Content)
	}
	return out
}

// Turns returns a copy of all retained turns, oldest first.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}
