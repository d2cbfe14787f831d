package judge

import (
	"sync"
	"time"
)

// Task wraps a Job assigned to the worker, giving HTTP readers safe
// lock-scoped snapshots while the worker mutates it in place. No mutex
// is held across a child-process wait or file I/O; every update() call
// is a short, in-memory-only critical section.
type Task struct {
	lock sync.Mutex
	job  Job
}

// SnapJob returns a deep copy of the job's current state under a short
// lock; the copy never aliases the Cases slice the worker mutates.
func (t *Task) SnapJob() Job {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.job.Clone()
}

// update runs f with the task's lock held, refreshing UpdatedTime.
// f must not block on I/O or child waits.
func (t *Task) update(f func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	f()
	t.job.UpdatedTime = time.Now()
}

// Queue is the FIFO of in-flight jobs with exactly one consuming worker
// goroutine. The HTTP layer only ever enqueues and reads
// snapshots; it never touches a Task's job field directly.
type Queue struct {
	engine *Engine

	mu      sync.Mutex
	pending []*Task
	byID    map[int32]*Task

	incoming chan *Task
	stop     chan struct{}
	stopOnce sync.Once

	onStart  func(Job)
	onFinish func(Job)
}

// NewQueue creates a queue bound to engine. Call Start once to begin the
// single worker goroutine.
func NewQueue(engine *Engine, onFinish func(Job)) *Queue {
	return &Queue{
		engine:   engine,
		byID:     make(map[int32]*Task),
		incoming: make(chan *Task, 4096),
		stop:     make(chan struct{}),
		onFinish: onFinish,
	}
}

// OnStart registers a hook invoked on the worker goroutine just before
// each job runs. Must be set before Start.
func (q *Queue) OnStart(f func(Job)) {
	q.onStart = f
}

// Start launches the single worker goroutine. Calling Start more than
// once would violate the "exactly one worker thread" invariant, so
// callers must call it exactly once.
func (q *Queue) Start() {
	go q.worker()
}

// Shutdown signals the worker to stop after its current job, matching
// POST /internal/exit semantics: the current job is allowed to finish,
// new jobs are no longer pulled.
func (q *Queue) Shutdown() {
	q.stopOnce.Do(func() { close(q.stop) })
}

// Enqueue admits a freshly created job (already validated by the
// Submission Gate) and returns its Task handle.
func (q *Queue) Enqueue(job Job) *Task {
	t := &Task{job: job}
	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.byID[job.ID] = t
	q.mu.Unlock()
	q.incoming <- t
	return t
}

// Find returns the Task for a job id still tracked by the queue (either
// pending or currently running); ok is false once the job has finished
// and been removed.
func (q *Queue) Find(id int32) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byID[id]
	return t, ok
}

// Snapshot returns every job still tracked in memory, used by read paths
// that fuse the in-memory queue with the durable store.
// The job currently on the worker is included: it has left pending but
// stays in byID until it finishes.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	tasks := make([]*Task, 0, len(q.byID))
	for _, t := range q.byID {
		tasks = append(tasks, t)
	}
	q.mu.Unlock()
	jobs := make([]Job, 0, len(tasks))
	for _, t := range tasks {
		jobs = append(jobs, t.SnapJob())
	}
	return jobs
}

// Depth reports how many jobs are tracked in memory (queueing plus the
// one the worker may be running).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// Cancel removes a still-queued job. Returns false (invalid_state) if
// the job has already been popped by the worker.
func (q *Queue) Cancel(id int32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.pending {
		snap := t.SnapJob()
		if snap.ID == id && snap.State == JobQueueing {
			t.update(func() {
				t.job.State = JobCanceled
			})
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			delete(q.byID, id)
			return true
		}
	}
	return false
}

// Rerun enqueues job under a new Task handle. It does not reset the job
// itself: the caller passes an already fresh job (e.g. from NewJob) and
// must have already validated state=finished.
func (q *Queue) Rerun(job Job) *Task {
	return q.Enqueue(job)
}

func (q *Queue) worker() {
	for {
		select {
		case <-q.stop:
			return
		case t := <-q.incoming:
			select {
			case <-q.stop:
				// select picks among ready cases at random, so a closed
				// stop channel is re-checked before running a new job
				return
			default:
			}
			if t.SnapJob().State == JobCanceled {
				// removed via Cancel after enqueue; the channel still
				// holds the stale handle
				continue
			}
			q.popFront(t)
			if q.onStart != nil {
				q.onStart(t.SnapJob())
			}
			q.engine.Run(t)
			q.untrack(t.SnapJob().ID)
			if q.onFinish != nil {
				q.onFinish(t.SnapJob())
			}
		}
	}
}

func (q *Queue) popFront(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cur := range q.pending {
		if cur == t {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
}

func (q *Queue) untrack(id int32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.byID, id)
}
