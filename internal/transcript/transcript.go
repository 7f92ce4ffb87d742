// Package transcript holds the ordered log of messages exchanged in one
// chat session. The store is append-only while a session is live and is
// replaced wholesale when the session resets. Only the session controller
// writes to it; everyone else reads snapshots.
package transcript

import (
	"sync"
	"time"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one entry in the transcript. Immutable once appended.
type Message struct {
	Text   string
	Sender Sender
	At     time.Time
}

// Store is the transcript of a single session.
type Store struct {
	mu   sync.RWMutex
	msgs []Message
	now  func() time.Time
}

// NewStore creates an empty transcript store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append adds a message to the end of the transcript and returns it
// stamped with the append time.
func (s *Store) Append(text string, sender Sender) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{Text: text, Sender: sender, At: s.now()}
	s.msgs = append(s.msgs, msg)
	return msg
}

// Messages returns a snapshot copy of the transcript in append order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages in the transcript.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Last returns the most recent message, if any.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.msgs) == 0 {
		return Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}

// Reset discards the transcript. Used when the user changes mode and a
// fresh session starts.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}
