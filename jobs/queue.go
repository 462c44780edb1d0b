package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Job is one crystallization request: the impulse whose completed exchange
// should be distilled into insight.
type Job struct {
	ImpulseID  string    `json:"impulse_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is a file-backed FIFO. Jobs survive restarts: every mutation rewrites
// the JSON-lines backing file, and opening a queue replays whatever is left
// in it. An empty path keeps the queue memory-only.
type Queue struct {
	mu     sync.Mutex
	path   string
	jobs   []Job
	notify chan struct{}
}

// Open loads pending jobs from path.
func Open(path string) (*Queue, error) {
	q := &Queue{path: path, notify: make(chan struct{}, 1)}
	if path == "" {
		return q, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal(line, &job); err != nil {
			return nil, fmt.Errorf("parse job queue: %w", err)
		}
		q.jobs = append(q.jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read job queue: %w", err)
	}
	return q, nil
}

// Push enqueues a job.
func (q *Queue) Push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	q.jobs = append(q.jobs, job)
	if err := q.persistLocked(); err != nil {
		q.jobs = q.jobs[:len(q.jobs)-1]
		return err
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop blocks until a job is available, the timeout elapses, or ctx is
// canceled. The second return is false when nothing was dequeued.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Job, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if job, ok := q.tryPop(); ok {
			return job, true
		}
		select {
		case <-ctx.Done():
			return Job{}, false
		case <-deadline.C:
			return Job{}, false
		case <-q.notify:
		}
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) tryPop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if err := q.persistLocked(); err != nil {
		// Keep serving from memory; the job is only lost on restart.
		return job, true
	}
	return job, true
}

func (q *Queue) persistLocked() error {
	if q.path == "" {
		return nil
	}
	var buf []byte
	for _, job := range q.jobs {
		line, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(q.path, buf, 0o644); err != nil {
		return fmt.Errorf("persist job queue: %w", err)
	}
	return nil
}
