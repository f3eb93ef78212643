package mailer

import (
	"context"
	"sync"
)

// Simulated records messages in memory instead of sending them.
type Simulated struct {
	mu       sync.Mutex
	messages []Message
}

// NewSimulated constructs an empty simulated mailer.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns the messages captured so far.
func (s *Simulated) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
