package jobqueue

import "errors"

// ErrQueueUnavailable is returned when the queue's on-disk state cannot be
// read or written (disk full, lock stuck beyond its timeout). Callers
// surface this as a 503; retrying is the caller's responsibility.
var ErrQueueUnavailable = errors.New("jobqueue: queue unavailable")

// ErrJobNotFound is returned by Complete/Fail when jobID has no matching
// file in processing/.
var ErrJobNotFound = errors.New("jobqueue: job not found in processing")

// Retryable reports whether err should be treated as a transient queue
// failure worth retrying, as opposed to a programming error.
func Retryable(err error) bool {
	return errors.Is(err, ErrQueueUnavailable)
}
