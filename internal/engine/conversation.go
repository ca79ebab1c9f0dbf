package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/normanking/cortexpresence/internal/classify"
	"github.com/normanking/cortexpresence/internal/clock"
)

// ConversationConfig configures the Conversation log.
type ConversationConfig struct {
	// MaxMessages is the maximum number of messages to retain (default: 200)
	MaxMessages int
	// InactivityTimeout is the gap after which the log starts over (default: 30 minutes)
	InactivityTimeout time.Duration
}

// DefaultConversationConfig returns sensible defaults for the conversation log.
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MaxMessages:       200,
		InactivityTimeout: 30 * time.Minute,
	}
}

// Conversation is the bounded message history the flow analysis reads.
type Conversation struct {
	mu           sync.RWMutex
	messages     []classify.Message
	lastActivity time.Time
	config       ConversationConfig
	clock        clock.Scheduler
}

// NewConversation creates an empty log. Zero config values take defaults.
func NewConversation(config ConversationConfig, sched clock.Scheduler) *Conversation {
	def := DefaultConversationConfig()
	if config.MaxMessages <= 0 {
		config.MaxMessages = def.MaxMessages
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = def.InactivityTimeout
	}
	return &Conversation{
		messages:     make([]classify.Message, 0, min(config.MaxMessages, 64)),
		lastActivity: sched.Now(),
		config:       config,
		clock:        sched,
	}
}

// Append records a message. A zero timestamp is stamped with the current
// time. The log restarts if it sat idle past the inactivity timeout.
func (c *Conversation) Append(msg classify.Message) error {
	switch msg.Sender {
	case classify.SenderUser, classify.SenderAgent:
	default:
		return fmt.Errorf("%w: unknown sender %q", ErrInvalidInput, msg.Sender)
	}
	msg.Content = strings.ToValidUTF8(msg.Content, "")

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.isExpiredLocked(now) {
		c.messages = c.messages[:0]
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	c.messages = append(c.messages, msg)
	c.lastActivity = now

	// Trim to max size
	if len(c.messages) > c.config.MaxMessages {
		c.messages = append(c.messages[:0:0], c.messages[len(c.messages)-c.config.MaxMessages:]...)
	}
	return nil
}

// Messages returns a copy of the retained messages, oldest first.
func (c *Conversation) Messages() []classify.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isExpiredLocked(c.clock.Now()) {
		return nil
	}
	out := make([]classify.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Count returns the number of retained messages.
func (c *Conversation) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isExpiredLocked(c.clock.Now()) {
		return 0
	}
	return len(c.messages)
}

// Clear removes all messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = c.messages[:0]
}

func (c *Conversation) isExpiredLocked(now time.Time) bool {
	if len(c.messages) == 0 {
		return false
	}
	return now.Sub(c.lastActivity) > c.config.InactivityTimeout
}
