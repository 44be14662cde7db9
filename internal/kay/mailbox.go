package kay

import "sync"

// Mailbox is an unbounded FIFO message queue. Enqueue never blocks and never
// drops; ordering is arrival order, which preserves per-sender send order
// because a sender's sends are sequential.
type Mailbox struct {
	mutex    sync.Mutex
	messages []Message
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Enqueue appends a message.
func (m *Mailbox) Enqueue(msg Message) {
	m.mutex.Lock()
	m.messages = append(m.messages, msg)
	m.mutex.Unlock()
}

// Dequeue removes and returns the oldest message, if any.
func (m *Mailbox) Dequeue() (Message, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(m.messages) == 0 {
		return Message{}, false
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	if len(m.messages) == 0 {
		m.messages = nil
	}
	return msg, true
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.messages)
}
