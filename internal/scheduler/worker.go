package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/cache"
	"github.com/tastythames/switch-backup/internal/metrics"
	"github.com/tastythames/switch-backup/internal/model"
)

// statusRetention is how long finished job statuses stay pollable.
const statusRetention = 24 * time.Hour

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobFinished  = errors.New("job already finished")
	ErrQueueStopped = errors.New("capture queue stopped")
)

// Queue runs capture jobs one at a time in submission order. Submit never
// blocks, a full queue rejects the job.
type Queue struct {
	jobCh  chan Job
	runner Runner
	cache  cache.Cache
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	stopped       bool
	cancelled     map[string]bool
	running       string
	runningCancel context.CancelFunc

	// stats (atomic) for observability
	enqueued uint64
	dropped  uint64
}

func NewQueue(size int, runner Runner, c cache.Cache, logger *logrus.Logger) *Queue {
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		jobCh:     make(chan Job, size),
		runner:    runner,
		cache:     c,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		cancelled: make(map[string]bool),
	}
}

// Start launches the single worker.
func (q *Queue) Start() {
	q.wg.Add(1)

	go func() {
		defer q.wg.Done()
		q.work()
	}()
}

// Submit enqueues job and returns its id.
func (q *Queue) Submit(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	if job.Source == "" {
		job.Source = SourceManual
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrQueueStopped
	}

	q.cache.Prune(time.Now().Add(-statusRetention))

	// status is recorded before the send so the worker never races ahead of it
	q.cache.Set(job.ID, cache.JobStatus{
		ID:       job.ID,
		DeviceID: job.DeviceID,
		Source:   job.Source,
		State:    cache.StateQueued,
		QueuedAt: time.Now(),
	})

	select {
	case q.jobCh <- job:
		atomic.AddUint64(&q.enqueued, 1)
		metrics.QueueDepth.Set(float64(len(q.jobCh)))

		return job.ID, nil
	default:
		d := atomic.AddUint64(&q.dropped, 1)
		metrics.QueueDropped.Inc()
		st, _ := q.cache.Get(job.ID)
		st.State = cache.StateCancelled
		st.FinishedAt = time.Now()
		q.cache.Set(job.ID, st)

		q.logger.WithFields(logrus.Fields{"job": job.ID, "dropped": d}).Warn("capture queue full, job dropped")

		return "", errors.Wrapf(model.ErrQueueFull, "%d jobs waiting", cap(q.jobCh))
	}
}

// Status returns the last recorded state of job id.
func (q *Queue) Status(id string) (cache.JobStatus, bool) {
	return q.cache.Get(id)
}

// Cancel skips a queued job or aborts the running one at its next poll.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.cache.Get(id)
	if !ok {
		return errors.Wrap(ErrJobNotFound, id)
	}

	if st.Finished() {
		return errors.Wrap(ErrJobFinished, id)
	}

	q.cancelled[id] = true

	if q.running == id && q.runningCancel != nil {
		q.runningCancel()
		q.logger.WithField("job", id).Info("running capture job cancelled")

		return nil
	}

	st.State = cache.StateCancelled
	st.FinishedAt = time.Now()
	q.cache.Set(id, st)
	q.logger.WithField("job", id).Info("queued capture job cancelled")

	return nil
}

// Stats returns enqueued and dropped job counts.
func (q *Queue) Stats() (enqueued uint64, dropped uint64) {
	return atomic.LoadUint64(&q.enqueued), atomic.LoadUint64(&q.dropped)
}

// Stop rejects further submissions, aborts the running job, marks queued
// jobs cancelled and waits for the worker to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}

	q.stopped = true
	close(q.jobCh)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) work() {
	for job := range q.jobCh {
		metrics.QueueDepth.Set(float64(len(q.jobCh)))

		jctx, ok := q.begin(job)
		if !ok {
			continue
		}

		q.run(jctx, job)
	}
}

// begin marks job running, it returns false when the job was cancelled
// while queued or the queue is stopping.
func (q *Queue) begin(job Job) (context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, _ := q.cache.Get(job.ID)

	if q.cancelled[job.ID] || q.ctx.Err() != nil {
		delete(q.cancelled, job.ID)

		st.State = cache.StateCancelled
		st.FinishedAt = time.Now()
		q.cache.Set(job.ID, st)

		return nil, false
	}

	jctx, cancel := context.WithCancel(q.ctx)
	q.running = job.ID
	q.runningCancel = cancel

	st.State = cache.StateRunning
	st.StartedAt = time.Now()
	q.cache.Set(job.ID, st)

	return jctx, true
}

func (q *Queue) run(ctx context.Context, job Job) {
	logger := q.logger.WithFields(logrus.Fields{"job": job.ID, "source": job.Source})
	logger.Info("capture job started")

	st, _ := q.cache.Get(job.ID)

	if job.All() {
		batch := q.runner.CaptureAll(ctx)
		st.Batch = &batch
	} else {
		res := q.runner.CaptureDevice(ctx, job.DeviceID)
		st.Result = &res
	}

	q.mu.Lock()
	q.runningCancel()
	q.running = ""
	q.runningCancel = nil

	st.State = cache.StateDone
	if q.cancelled[job.ID] {
		delete(q.cancelled, job.ID)
		st.State = cache.StateCancelled
	}

	st.FinishedAt = time.Now()
	q.cache.Set(job.ID, st)
	q.mu.Unlock()

	logger.WithField("state", st.State).Info("capture job finished")
}
