package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TaskQueue runs fire-and-forget side effects (scoring calls, notifications,
// completion checks) off the caller's request path. Failures there must never
// propagate back into the triggering operation.
type TaskQueue interface {
	Enqueue(name string, fn func(ctx context.Context) error)
}

// DeadTask records a task that exhausted all retry attempts.
type DeadTask struct {
	ID       string
	Name     string
	Attempts int
	LastErr  string
	FailedAt time.Time
}

type outboxTask struct {
	id   string
	name string
	fn   func(ctx context.Context) error
}

// Outbox is an in-process task queue with fixed-backoff retries and a
// dead-letter list. It upgrades bare fire-and-forget goroutines to
// at-least-once execution with failure visibility.
type Outbox struct {
	logger      *logrus.Entry
	tasks       chan *outboxTask
	workers     int
	maxAttempts int
	backoff     time.Duration
	taskTimeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	deadMu sync.Mutex
	dead   []DeadTask
}

func NewOutbox(logger *logrus.Entry, workers, maxAttempts int, backoff time.Duration) *Outbox {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Outbox{
		logger:      logger,
		tasks:       make(chan *outboxTask, 256),
		workers:     workers,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		taskTimeout: 2 * time.Minute,
	}
}

func (o *Outbox) Start() {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.WithField("workers", o.workers).Info("Outbox started")
}

// Enqueue schedules a task for asynchronous execution. Enqueueing after Stop
// drops the task with a log entry.
func (o *Outbox) Enqueue(name string, fn func(ctx context.Context) error) {
	// The send stays under the same lock Stop takes before closing the
	// channel. Workers drain without touching this lock, so a full buffer
	// cannot wedge the queue.
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.WithField("task", name).Warn("Outbox is stopped, dropping task")
		return
	}
	o.tasks <- &outboxTask{id: uuid.NewString(), name: name, fn: fn}
}

// Stop closes the queue and waits for in-flight tasks to drain.
func (o *Outbox) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.tasks)
	o.mu.Unlock()

	o.wg.Wait()
	o.logger.Info("Outbox stopped")
}

// DeadLetters returns tasks that failed all attempts.
func (o *Outbox) DeadLetters() []DeadTask {
	o.deadMu.Lock()
	defer o.deadMu.Unlock()
	out := make([]DeadTask, len(o.dead))
	copy(out, o.dead)
	return out
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for task := range o.tasks {
		o.run(task)
	}
}

func (o *Outbox) run(task *outboxTask) {
	taskLogger := o.logger.WithFields(logrus.Fields{"task": task.name, "task_id": task.id})

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), o.taskTimeout)
		err := task.fn(ctx)
		cancel()
		if err == nil {
			if attempt > 1 {
				taskLogger.WithField("attempt", attempt).Info("Task succeeded after retry")
			}
			return
		}
		lastErr = err
		taskLogger.WithError(err).WithField("attempt", attempt).Warn("Task failed")
		if attempt < o.maxAttempts {
			time.Sleep(o.backoff)
		}
	}

	o.deadMu.Lock()
	o.dead = append(o.dead, DeadTask{
		ID:       task.id,
		Name:     task.name,
		Attempts: o.maxAttempts,
		LastErr:  lastErr.Error(),
		FailedAt: time.Now(),
	})
	o.deadMu.Unlock()
	taskLogger.WithError(lastErr).Error("Task exhausted retries, moved to dead letters")
}
