package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hirejudge/internal/metrics"
	"hirejudge/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when the buffer has no room left.
var ErrQueueFull = errors.New("notification queue is full")

// ErrQueueClosed is returned after Stop.
var ErrQueueClosed = errors.New("notification queue is closed")

// WorkerQueueConfig sizes the in-process queue.
type WorkerQueueConfig struct {
	Size        int           `yaml:"size"`
	Workers     int           `yaml:"workers"`
	SendTimeout time.Duration `yaml:"sendTimeout"`
}

// WorkerQueue is a bounded in-process queue drained by a fixed worker pool.
type WorkerQueue struct {
	sender  Sender
	timeout time.Duration
	workers int

	ch     chan Notification
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewWorkerQueue creates a queue; call Start to begin delivery.
func NewWorkerQueue(sender Sender, cfg WorkerQueueConfig) *WorkerQueue {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &WorkerQueue{
		sender:  sender,
		timeout: cfg.SendTimeout,
		workers: cfg.Workers,
		ch:      make(chan Notification, cfg.Size),
	}
}

// Start launches the workers.
func (q *WorkerQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		threading.GoSafe(func() {
			defer q.wg.Done()
			for n := range q.ch {
				q.deliver(n)
			}
		})
	}
}

// Enqueue hands the batch to the workers without waiting. Notifications that
// find the buffer full are dropped and reported with ErrQueueFull.
func (q *WorkerQueue) Enqueue(ctx context.Context, batch ...Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	dropped := 0
	for _, n := range batch {
		select {
		case q.ch <- n:
			metrics.NotificationsTotal.WithLabelValues("queued").Inc()
		default:
			dropped++
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
			logger.Warn(ctx, "notification dropped", zap.String("email", n.Email), zap.Int64("interview_id", n.Data.InterviewID))
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%d of %d dropped: %w", dropped, len(batch), ErrQueueFull)
	}
	return nil
}

// Stop closes the queue and waits for buffered notifications to drain.
func (q *WorkerQueue) Stop() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

func (q *WorkerQueue) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.sender.Send(ctx, n.Email, n.Data); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "send notification failed", zap.String("id", n.ID), zap.String("email", n.Email), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
