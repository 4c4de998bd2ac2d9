// Package notify delivers push messages to human collaborators. Delivery
// transports (IM webhook, SMS gateway) implement Notifier; the rest of the
// system only ever enqueues onto the outbox.
package notify

import (
	"context"
	"sync"
)

// Message is one push notification. Priority carries the action or approval
// priority so transports can render urgency.
type Message struct {
	ReceiverID string            `json:"receiver_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Priority   string            `json:"priority,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Notifier is a delivery transport.
type Notifier interface {
	Push(ctx context.Context, msg *Message) error
}

// Recorder is a Notifier that captures messages in memory. Used in tests and
// as the default transport in development runs.
type Recorder struct {
	mu   sync.Mutex
	msgs []*Message
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Push(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.msgs = append(r.msgs, &cp)
	return nil
}

// Messages returns a copy of everything pushed so far.
func (r *Recorder) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}
