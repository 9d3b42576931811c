// Package jobqueue is a durable, file-backed FIFO queue shared across OS
// processes, with at-least-once delivery and crash recovery. Enqueue(job);
// Enqueue(job) with the same JobID is a no-op that returns the existing id.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/metricsstore"
)

const (
	minPollInterval = 50 * time.Millisecond
	maxPollInterval = time.Second
)

// Queue is one workspace's durable job queue, rooted at a directory holding
// queue.json plus the jobs/, processing/, completed/, and failed/
// subdirectories.
type Queue struct {
	log     logger.Logger
	baseDir string
	lock    *flock.Flock

	recoveryGrace time.Duration

	enqueueLatency  metricsstore.Histogram
	dequeueLatency  metricsstore.Histogram
	completeLatency metricsstore.Histogram
	failLatency     metricsstore.Histogram
	enqueuedTotal   metricsstore.Counter
	dequeuedTotal   metricsstore.Counter
	completedTotal  metricsstore.Counter
	failedTotal     metricsstore.Counter
}

// Open returns a Queue rooted at baseDir, creating the directory layout if
// it doesn't already exist.
func Open(l logger.Logger, baseDir string, recoveryGrace time.Duration, metrics *metricsstore.Registry) (*Queue, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "jobs"), filepath.Join(baseDir, "processing"), filepath.Join(baseDir, "completed"), filepath.Join(baseDir, "failed")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jobqueue: creating %s: %w", dir, err)
		}
	}

	q := &Queue{
		log:           l,
		baseDir:       baseDir,
		lock:          flock.New(filepath.Join(baseDir, ".lock")),
		recoveryGrace: recoveryGrace,
	}

	if metrics != nil {
		q.enqueueLatency = metrics.Histogram("jobqueue_enqueue_latency_ms", "enqueue latency in ms", nil)
		q.dequeueLatency = metrics.Histogram("jobqueue_dequeue_latency_ms", "dequeue latency in ms", nil)
		q.completeLatency = metrics.Histogram("jobqueue_complete_latency_ms", "complete latency in ms", nil)
		q.failLatency = metrics.Histogram("jobqueue_fail_latency_ms", "fail latency in ms", nil)
		q.enqueuedTotal = metrics.Counter("jobqueue_enqueued_total", "jobs enqueued", nil)
		q.dequeuedTotal = metrics.Counter("jobqueue_dequeued_total", "jobs dequeued", nil)
		q.completedTotal = metrics.Counter("jobqueue_completed_total", "jobs completed", nil)
		q.failedTotal = metrics.Counter("jobqueue_failed_total", "jobs failed", nil)
	}

	return q, nil
}

func (q *Queue) jobsPath(id string) string       { return filepath.Join(q.baseDir, "jobs", id+".json") }
func (q *Queue) processingPath(id string) string { return filepath.Join(q.baseDir, "processing", id+".json") }
func (q *Queue) completedPath(id string) string  { return filepath.Join(q.baseDir, "completed", id+".json") }
func (q *Queue) failedPath(id string) string     { return filepath.Join(q.baseDir, "failed", id+".json") }
func (q *Queue) listPath() string                { return filepath.Join(q.baseDir, "queue.json") }

// Enqueue durably persists job and appends its id to the ordered queue. If
// job.JobID already exists anywhere in the pipeline, Enqueue is a no-op and
// returns the existing id — this is the idempotency guarantee relied on by
// duplicate webhook deliveries.
func (q *Queue) Enqueue(job WebhookJob) (string, error) {
	start := time.Now()
	if err := q.withLock(func() error {
		if q.exists(job.JobID) {
			return nil
		}

		job.Status = Pending
		if err := writeJSONAtomic(q.jobsPath(job.JobID), job); err != nil {
			return err
		}

		ids, err := q.readList()
		if err != nil {
			return err
		}
		ids = append(ids, job.JobID)
		return q.writeList(ids)
	}); err != nil {
		return "", err
	}

	q.observe(q.enqueueLatency, q.enqueuedTotal, start)
	return job.JobID, nil
}

// exists reports whether jobID has a record anywhere in the pipeline. Must
// be called while holding the lock.
func (q *Queue) exists(jobID string) bool {
	for _, p := range []string{q.jobsPath(jobID), q.processingPath(jobID), q.completedPath(jobID), q.failedPath(jobID)} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Dequeue pops the head of the queue, moves its file from jobs/ to
// processing/, and returns the decoded job. Returns (nil, nil) if the queue
// is empty.
func (q *Queue) Dequeue() (*WebhookJob, error) {
	start := time.Now()
	var job *WebhookJob

	if err := q.withLock(func() error {
		ids, err := q.readList()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		id := ids[0]
		ids = ids[1:]

		var j WebhookJob
		if err := readJSON(q.jobsPath(id), &j); err != nil {
			return err
		}

		now := time.Now()
		j.Status = Processing
		j.StartedAt = &now

		if err := writeJSONAtomic(q.processingPath(id), j); err != nil {
			return err
		}
		if err := os.Remove(q.jobsPath(id)); err != nil {
			return fmt.Errorf("jobqueue: removing %s: %w", q.jobsPath(id), err)
		}
		if err := q.writeList(ids); err != nil {
			return err
		}

		job = &j
		return nil
	}); err != nil {
		return nil, err
	}

	if job != nil {
		q.observe(q.dequeueLatency, q.dequeuedTotal, start)
	}
	return job, nil
}

// WaitForDequeue blocks up to timeout for a job to become available,
// polling with a bounded sleep that starts at 50ms and backs off to 1s. No
// filesystem watcher is used.
func (q *Queue) WaitForDequeue(ctx context.Context, timeout time.Duration) (*WebhookJob, error) {
	deadline := time.Now().Add(timeout)
	interval := minPollInterval

	for {
		job, err := q.Dequeue()
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}

// Complete moves jobID from processing/ to completed/, recording the
// supplied result.
func (q *Queue) Complete(jobID string, result CompletionResult) error {
	start := time.Now()
	err := q.withLock(func() error {
		var job WebhookJob
		if err := readJSON(q.processingPath(jobID), &job); err != nil {
			if os.IsNotExist(err) {
				return ErrJobNotFound
			}
			return err
		}

		now := time.Now()
		job.Status = Completed
		job.CompletedAt = &now
		result.CompletedAt = now

		rec := completedRecord{WebhookJob: job, CompletionResult: result}
		if err := writeJSONAtomic(q.completedPath(jobID), rec); err != nil {
			return err
		}
		return os.Remove(q.processingPath(jobID))
	})
	if err != nil {
		return err
	}
	q.observe(q.completeLatency, q.completedTotal, start)
	return nil
}

// Fail moves jobID from processing/ to failed/, recording the supplied
// failure detail.
func (q *Queue) Fail(jobID string, failure FailureDetail) error {
	start := time.Now()
	err := q.withLock(func() error {
		var job WebhookJob
		if err := readJSON(q.processingPath(jobID), &job); err != nil {
			if os.IsNotExist(err) {
				return ErrJobNotFound
			}
			return err
		}

		now := time.Now()
		job.Status = Failed
		job.CompletedAt = &now
		job.LastError = failure.Message
		failure.FailedAt = now
		failure.Attempt = job.Attempt

		rec := failedRecord{WebhookJob: job, Error: failure}
		if err := writeJSONAtomic(q.failedPath(jobID), rec); err != nil {
			return err
		}
		return os.Remove(q.processingPath(jobID))
	})
	if err != nil {
		return err
	}
	q.observe(q.failLatency, q.failedTotal, start)
	return nil
}

// Recover moves any file in processing/ older than the configured grace
// period back to jobs/, re-appending it to queue.json with its attempt
// counter incremented, and clearing StartedAt. This realizes at-least-once
// delivery after a crash; downstream idempotency is keyed on JobID.
func (q *Queue) Recover() (int, error) {
	recovered := 0

	err := q.withLock(func() error {
		entries, err := os.ReadDir(filepath.Join(q.baseDir, "processing"))
		if err != nil {
			return fmt.Errorf("jobqueue: reading processing dir: %w", err)
		}

		ids, err := q.readList()
		if err != nil {
			return err
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			if time.Since(info.ModTime()) < q.recoveryGrace {
				continue
			}

			id := trimJSONExt(entry.Name())
			var job WebhookJob
			path := filepath.Join(q.baseDir, "processing", entry.Name())
			if err := readJSON(path, &job); err != nil {
				q.log.Error("jobqueue: recover: reading %s: %v", path, err)
				continue
			}

			job.Status = Pending
			job.StartedAt = nil
			job.Attempt++

			if err := writeJSONAtomic(q.jobsPath(id), job); err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return err
			}
			ids = append(ids, id)
			recovered++
			q.log.Warn("jobqueue: recovered stuck job %s (attempt %d)", id, job.Attempt)
		}

		if recovered > 0 {
			return q.writeList(ids)
		}
		return nil
	})

	return recovered, err
}

func (q *Queue) observe(h metricsstore.Histogram, c metricsstore.Counter, start time.Time) {
	if h != nil {
		h.Observe(float64(time.Since(start).Milliseconds()))
	}
	if c != nil {
		c.Inc()
	}
}

func (q *Queue) withLock(fn func() error) error {
	if err := q.lock.Lock(); err != nil {
		return fmt.Errorf("%w: acquiring lock: %v", ErrQueueUnavailable, err)
	}
	defer func() {
		if err := q.lock.Unlock(); err != nil {
			q.log.Error("jobqueue: releasing lock: %v", err)
		}
	}()
	return fn()
}

func (q *Queue) readList() ([]string, error) {
	data, err := os.ReadFile(q.listPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading queue.json: %v", ErrQueueUnavailable, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: decoding queue.json: %v", ErrQueueUnavailable, err)
	}
	return ids, nil
}

func (q *Queue) writeList(ids []string) error {
	if err := writeJSONAtomic(q.listPath(), ids); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("jobqueue: marshaling %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("jobqueue: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("jobqueue: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func trimJSONExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// Stats is a point-in-time snapshot of derived queue gauges.
type Stats struct {
	QueueSize         int
	BacklogAgeSeconds float64
	DiskUsageMB       float64
	JobsPerHour       float64
}

// Stats computes the derived gauges described in the spec: queue_size,
// backlog_age_seconds (age of the oldest pending job), disk_usage_mb, and
// jobs_per_hour (a rolling 24-hour window over completed/*.json timestamps).
func (q *Queue) Stats() (Stats, error) {
	var s Stats

	ids, err := q.readList()
	if err != nil {
		return s, err
	}
	s.QueueSize = len(ids)

	if len(ids) > 0 {
		var oldest time.Time
		for _, id := range ids {
			var job WebhookJob
			if err := readJSON(q.jobsPath(id), &job); err != nil {
				continue
			}
			if oldest.IsZero() || job.CreatedAt.Before(oldest) {
				oldest = job.CreatedAt
			}
		}
		if !oldest.IsZero() {
			s.BacklogAgeSeconds = time.Since(oldest).Seconds()
		}
	}

	var totalBytes int64
	_ = filepath.Walk(q.baseDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		totalBytes += info.Size()
		return nil
	})
	s.DiskUsageMB = float64(totalBytes) / (1024 * 1024)

	cutoff := time.Now().Add(-24 * time.Hour)
	entries, err := os.ReadDir(filepath.Join(q.baseDir, "completed"))
	if err == nil {
		count := 0
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || info.ModTime().Before(cutoff) {
				continue
			}
			count++
		}
		s.JobsPerHour = float64(count) / 24
	}

	return s, nil
}
