package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
)

const (
	defaultQueueSize = 256
	sendTimeout      = 5 * time.Second
	drainTimeout     = 3 * time.Second
)

// NotificationWorker drains domain events to the outbound sink off the
// request path. Delivery is best effort.
type NotificationWorker struct {
	queue   chan events.Event
	sink    events.Sink
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(sink events.Sink, logger *zap.Logger, queueSize int) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &NotificationWorker{
		queue:  make(chan events.Event, queueSize),
		sink:   sink,
		logger: logger,
	}
}

// Enqueue never blocks; a full queue drops the event.
func (w *NotificationWorker) Enqueue(event events.Event) bool {
	select {
	case w.queue <- event:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Dropped counts events lost to a full queue.
func (w *NotificationWorker) Dropped() int64 {
	return w.dropped.Load()
}

// Run forwards queued events until ctx is done, then drains what is left
// under a short deadline and closes the sink.
func (w *NotificationWorker) Run(ctx context.Context) error {
	defer func() {
		if err := w.sink.Close(); err != nil {
			w.logger.Warn("event sink close failed", zap.Error(err))
		}
	}()
	for {
		select {
		case event := <-w.queue:
			w.send(ctx, event)
		case <-ctx.Done():
			w.drain()
			return nil
		}
	}
}

func (w *NotificationWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.queue:
			w.send(ctx, event)
		default:
			return
		}
	}
}

func (w *NotificationWorker) send(ctx context.Context, event events.Event) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := w.sink.Send(sendCtx, event); err != nil {
		w.logger.Warn("event forward failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

type discardSink struct{}

func (discardSink) Send(context.Context, events.Event) error { return nil }
func (discardSink) Close() error                             { return nil }

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
