package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	defaultNotificationBuffer  = 256
	defaultNotificationTimeout = 10 * time.Second

	notifyEventDropped = "notification.dropped"
	notifyEventFailed  = "notification.failed"
)

// ErrNotifierClosed is returned when a notification is queued after Close.
var ErrNotifierClosed = errors.New("notifier: closed")

// AsyncNotifierDeps configures the background notification dispatcher.
type AsyncNotifierDeps struct {
	Delegate OrderNotifier
	Buffer   int
	Timeout  time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// AsyncNotifier queues notifications and delivers them on a background
// goroutine so callers never wait on the downstream transport. A full queue
// drops the notification and logs it.
type AsyncNotifier struct {
	delegate OrderNotifier
	timeout  time.Duration
	logger   func(context.Context, string, map[string]any)

	queue chan notificationJob
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

type notificationJob struct {
	ctx     context.Context
	kind    string
	deliver func(ctx context.Context) error
	fields  map[string]any
}

// NewAsyncNotifier starts the dispatcher goroutine.
func NewAsyncNotifier(deps AsyncNotifierDeps) (*AsyncNotifier, error) {
	if deps.Delegate == nil {
		return nil, errors.New("async notifier: delegate is required")
	}
	buffer := deps.Buffer
	if buffer <= 0 {
		buffer = defaultNotificationBuffer
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	n := &AsyncNotifier{
		delegate: deps.Delegate,
		timeout:  timeout,
		logger:   logger,
		queue:    make(chan notificationJob, buffer),
		done:     make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *AsyncNotifier) NotifyOrderStatus(ctx context.Context, note OrderStatusNotification) error {
	return n.enqueue(ctx, notificationJob{
		kind: "order_status",
		deliver: func(ctx context.Context) error {
			return n.delegate.NotifyOrderStatus(ctx, note)
		},
		fields: map[string]any{"orderId": note.OrderID, "status": string(note.Status)},
	})
}

func (n *AsyncNotifier) NotifyLowStock(ctx context.Context, note LowStockNotification) error {
	return n.enqueue(ctx, notificationJob{
		kind: "low_stock",
		deliver: func(ctx context.Context) error {
			return n.delegate.NotifyLowStock(ctx, note)
		},
		fields: map[string]any{"productId": note.ProductID, "remaining": note.Remaining},
	})
}

// Close stops accepting notifications and waits for the queue to drain or ctx to end.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *AsyncNotifier) enqueue(ctx context.Context, job notificationJob) error {
	// Request cancellation must not abort delivery; keep only the values.
	job.ctx = context.WithoutCancel(ctx)

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNotifierClosed
	}
	select {
	case n.queue <- job:
		return nil
	default:
		fields := copyFields(job.fields)
		fields["kind"] = job.kind
		n.logger(ctx, notifyEventDropped, fields)
		return nil
	}
}

func (n *AsyncNotifier) run() {
	defer close(n.done)
	for job := range n.queue {
		n.deliver(job)
	}
}

func (n *AsyncNotifier) deliver(job notificationJob) {
	ctx, cancel := context.WithTimeout(job.ctx, n.timeout)
	defer cancel()
	if err := job.deliver(ctx); err != nil {
		fields := copyFields(job.fields)
		fields["kind"] = job.kind
		fields["error"] = err.Error()
		n.logger(ctx, notifyEventFailed, fields)
	}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	return out
}
