package mail

import (
	"context"
	"sync"
)

// Sent records one outbound message captured by MemoryTransport.
type Sent struct {
	To      string
	Subject string
	Body    string
}

// MemoryTransport is an in-process Transport used in tests and when the
// daemon runs without mail credentials. Outbound mail is captured,
// inbound mail is whatever was queued and is drained on poll.
type MemoryTransport struct {
	mu      sync.Mutex
	sent    []Sent
	inbox   []Inbound
	sendErr error
	pollErr error
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

func (t *MemoryTransport) Send(ctx context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, Sent{To: to, Subject: subject, Body: body})
	return nil
}

func (t *MemoryTransport) PollUnread(ctx context.Context) ([]Inbound, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pollErr != nil {
		return nil, t.pollErr
	}
	out := t.inbox
	t.inbox = nil
	return out, nil
}

// Deliver queues a message for the next poll.
func (t *MemoryTransport) Deliver(from, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, Inbound{From: from, Content: content})
}

// Outbox returns a snapshot of everything sent so far.
func (t *MemoryTransport) Outbox() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sent))
	copy(out, t.sent)
	return out
}

// FailWith makes every Send and PollUnread return err.
func (t *MemoryTransport) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
	t.pollErr = err
}
