// Package conversation models the read-only chat history the tracker
// pipeline draws its context from, and builds prompt fragments from it.
package conversation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jackzampolin/tracker/internal/tracker"
)

// ErrNotFound is returned when a message index is out of range.
var ErrNotFound = errors.New("message not found")

// Message is one entry of the chat history.
type Message struct {
	Speaker string `yaml:"speaker" json:"speaker"`
	Body    string `yaml:"body" json:"body"`
	IsUser  bool   `yaml:"is_user,omitempty" json:"is_user,omitempty"`
	// IsSystem marks hidden/system messages excluded from prompt context.
	IsSystem bool `yaml:"is_system,omitempty" json:"is_system,omitempty"`
	// Interjection marks non-substantive system notes that never get a tracker.
	Interjection bool           `yaml:"interjection,omitempty" json:"interjection,omitempty"`
	Tracker      tracker.Record `yaml:"tracker,omitempty" json:"tracker,omitempty"`
}

// Character is a participant with an optional description.
type Character struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Cast describes who takes part in a chat. In group mode Members (minus
// Disabled) are the counterparts; otherwise Counterpart is.
type Cast struct {
	User        Character   `yaml:"user" json:"user"`
	Counterpart *Character  `yaml:"counterpart,omitempty" json:"counterpart,omitempty"`
	Group       bool        `yaml:"group,omitempty" json:"group,omitempty"`
	Members     []Character `yaml:"members,omitempty" json:"members,omitempty"`
	Disabled    []string    `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Store is an indexable, ordered, read-only view of a chat.
type Store interface {
	Len() int
	Message(i int) (Message, bool)
	Cast() Cast
}

// Attacher persists a generated tracker onto a message.
type Attacher interface {
	AttachTracker(i int, rec tracker.Record) error
}

// Chat is an in-memory Store and Attacher.
type Chat struct {
	mu       sync.RWMutex
	Roster   Cast      `yaml:"cast" json:"cast"`
	Messages []Message `yaml:"messages" json:"messages"`
}

// NewChat creates an in-memory chat.
func NewChat(cast Cast, messages ...Message) *Chat {
	return &Chat{Roster: cast, Messages: messages}
}

// Len returns the number of messages.
func (c *Chat) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Messages)
}

// Message returns the message at i.
func (c *Chat) Message(i int) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.Messages) {
		return Message{}, false
	}
	return c.Messages[i], true
}

// Cast returns the chat participants.
func (c *Chat) Cast() Cast {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Roster
}

// Append adds a message and returns its index.
func (c *Chat) Append(m Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, m)
	return len(c.Messages) - 1
}

// AttachTracker sets the tracker of message i.
func (c *Chat) AttachTracker(i int, rec tracker.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.Messages) {
		return fmt.Errorf("%w: %d", ErrNotFound, i)
	}
	c.Messages[i].Tracker = rec
	return nil
}
