package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
)

// Outbox decouples message producers from the delivery transport. Messages
// are queued and drained by a single worker that rate-limits sends and
// retries transient failures with exponential backoff. A message is dropped
// only after maxAttempts consecutive failures.
type Outbox struct {
	notifier    Notifier
	queue       chan *Message
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger

	startOnce sync.Once
	done      chan struct{}
}

// NewOutbox wraps notifier with a queue. ratePerSecond bounds sustained
// delivery throughput; burst allows short spikes.
func NewOutbox(notifier Notifier, ratePerSecond float64, burst int) *Outbox {
	return &Outbox{
		notifier:    notifier,
		queue:       make(chan *Message, defaultQueueSize),
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default().With("component", "notify.outbox"),
		done:        make(chan struct{}),
	}
}

// Enqueue queues msg for delivery. It never blocks; when the queue is full
// the message is dropped and logged, since approval state already persists
// the card content and a poller will re-surface overdue items.
func (o *Outbox) Enqueue(msg *Message) {
	select {
	case o.queue <- msg:
	default:
		o.logger.Warn("outbox full, dropping message", "receiver_id", msg.ReceiverID, "title", msg.Title)
	}
}

// Start launches the delivery worker. It runs until ctx is cancelled.
func (o *Outbox) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		go o.run(ctx)
	})
}

// Done is closed once the worker has exited.
func (o *Outbox) Done() <-chan struct{} { return o.done }

func (o *Outbox) run(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.queue:
			if err := o.limiter.Wait(ctx); err != nil {
				return
			}
			o.deliver(ctx, msg)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, msg *Message) {
	delay := o.baseDelay
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		err := o.notifier.Push(ctx, msg)
		if err == nil {
			return
		}
		if attempt == o.maxAttempts {
			o.logger.Error("message dropped after retries",
				"receiver_id", msg.ReceiverID, "title", msg.Title, "attempts", attempt, "error", err)
			return
		}
		o.logger.Warn("push failed, retrying",
			"receiver_id", msg.ReceiverID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}
