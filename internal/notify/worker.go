package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 1
	defaultWaitSeconds   = 10
	defaultBatchSize     = 5
	deleteTimeoutSeconds = 5
)

// Deliverer handles one decoded event.
type Deliverer interface {
	Deliver(ctx context.Context, evt Event) error
}

// Worker drains a Queue and hands each event to a Deliverer.
type Worker struct {
	queue     Queue
	deliverer Deliverer
	logger    *logging.Logger

	workers     int
	waitSeconds int
	batchSize   int

	wg sync.WaitGroup
}

type WorkerOption func(*Worker)

func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(w *Worker) {
		if seconds >= 0 && seconds <= 20 {
			w.waitSeconds = seconds
		}
	}
}

func NewWorker(queue Queue, deliverer Deliverer, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("notify: queue cannot be nil")
	}
	if deliverer == nil {
		panic("notify: deliverer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		queue:       queue,
		deliverer:   deliverer,
		logger:      logger,
		workers:     defaultWorkerCount,
		waitSeconds: defaultWaitSeconds,
		batchSize:   defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumer goroutines; they exit when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("notification worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.batchSize, w.waitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive notifications", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg QueueMessage) {
	evt, err := decodeEvent(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable notification", "error", err, "message_id", msg.ID)
		w.delete(ctx, msg.ReceiptHandle)
		return
	}
	if err := w.deliverer.Deliver(ctx, evt); err != nil {
		// Left on the queue so SQS redelivers it after the visibility timeout.
		w.logger.Error("notification delivery failed", "error", err, "event_id", evt.ID, "type", evt.Type)
		return
	}
	w.logger.Info("notification delivered", "event_id", evt.ID, "type", evt.Type, "recipient_id", evt.RecipientID)
	w.delete(ctx, msg.ReceiptHandle)
}

func (w *Worker) delete(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete notification", "error", err)
	}
}
