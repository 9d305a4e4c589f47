package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"contentflow-api/domain"
)

// QueuePublisher pushes notification envelopes onto the queue drained by the
// notification surface.
type QueuePublisher interface {
	EnqueueNotification(ctx context.Context, userID string, n domain.Notification) error
}

type notifyJob struct {
	userID string
	n      domain.Notification
}

// AsyncNotifier delivers notifications through a bounded worker pool so the
// board engine never blocks on the queue. Delivery is best effort: when the
// buffer is saturated past the handoff timeout the notification is dropped
// with a warning rather than stalling a mutation.
type AsyncNotifier struct {
	publisher QueuePublisher
	logger    *log.Logger
	jobs      chan notifyJob
	stopCh    chan struct{}
	timeout   time.Duration
	handoff   time.Duration
	workerWG  sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncNotifier starts the pool. Worker count, buffer size and timeouts
// come from NOTIFY_WORKERS, NOTIFY_BUFFER, NOTIFY_TIMEOUT and
// NOTIFY_HANDOFF_TIMEOUT.
func NewAsyncNotifier(publisher QueuePublisher, logger *log.Logger) *AsyncNotifier {
	if publisher == nil {
		panic("publisher is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	workers := envInt("NOTIFY_WORKERS", 4)
	if workers <= 0 {
		workers = 1
	}
	buffer := envInt("NOTIFY_BUFFER", 1024)
	if buffer <= 0 {
		buffer = workers * 2
	}

	a := &AsyncNotifier{
		publisher: publisher,
		logger:    logger,
		jobs:      make(chan notifyJob, buffer),
		stopCh:    make(chan struct{}),
		timeout:   envDur("NOTIFY_TIMEOUT", 30*time.Second),
		handoff:   envDur("NOTIFY_HANDOFF_TIMEOUT", 10*time.Millisecond),
	}
	for i := 0; i < workers; i++ {
		a.workerWG.Add(1)
		go a.worker(i)
	}
	logger.Infof("notification pool started, workers: %d, buffer: %d", workers, buffer)
	return a
}

// Notify hands the notification to the pool without blocking the caller
// beyond the handoff timeout.
func (a *AsyncNotifier) Notify(ctx context.Context, userID string, n domain.Notification) {
	job := notifyJob{userID: userID, n: n}

	select {
	case a.jobs <- job:
		return
	case <-a.stopCh:
		return
	default:
	}

	if a.handoff <= 0 {
		a.drop(job)
		return
	}
	timer := time.NewTimer(a.handoff)
	defer timer.Stop()
	select {
	case a.jobs <- job:
	case <-timer.C:
		a.drop(job)
	case <-a.stopCh:
	}
}

func (a *AsyncNotifier) drop(job notifyJob) {
	a.logger.WithFields(log.Fields{
		"user": job.userID,
		"kind": job.n.Kind,
	}).Warn("notification pool saturated, dropping notification")
}

func (a *AsyncNotifier) worker(id int) {
	defer a.workerWG.Done()
	for {
		select {
		case <-a.stopCh:
			return
		case job := <-a.jobs:
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			err := a.publisher.EnqueueNotification(ctx, job.userID, job.n)
			cancel()
			if err != nil {
				a.logger.WithError(err).Errorf("notification enqueue failed, user: %s, kind: %s, worker: %d", job.userID, job.n.Kind, id)
			}
		}
	}
}

// Close stops the workers. Buffered notifications that have not been picked
// up yet are discarded.
func (a *AsyncNotifier) Close() {
	a.closeOnce.Do(func() {
		close(a.stopCh)
	})
	a.workerWG.Wait()
}
