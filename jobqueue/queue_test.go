package jobqueue_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/h4mn/skybridge/jobqueue"
	"github.com/h4mn/skybridge/logger"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) *jobqueue.Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := jobqueue.Open(logger.Discard, dir, time.Minute, nil)
	require.NoError(t, err)
	return q
}

func sampleJob(id string) jobqueue.WebhookJob {
	return jobqueue.WebhookJob{
		JobID: id,
		Event: jobqueue.WebhookEvent{
			EventID:   "evt-" + id,
			Source:    "github",
			EventType: "issues.opened",
		},
		Skill:     "resolve-issue",
		CreatedAt: time.Now(),
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := newQueue(t)
	job := sampleJob("github-issues.opened-abc12345")

	id1, err := q.Enqueue(job)
	require.NoError(t, err)
	id2, err := q.Enqueue(job)
	require.NoError(t, err)

	require.Equal(t, id1, id2)

	stats, err := q.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.QueueSize)
}

func TestDequeueReturnsNilWhenEmpty(t *testing.T) {
	q := newQueue(t)
	job, err := q.Dequeue()
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := newQueue(t)
	_, err := q.Enqueue(sampleJob("github-issues.opened-abc12345"))
	require.NoError(t, err)

	job, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, jobqueue.Processing, job.Status)

	again, err := q.Dequeue()
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestCompleteMovesFileToCompleted(t *testing.T) {
	q := newQueue(t)
	_, err := q.Enqueue(sampleJob("github-issues.opened-abc12345"))
	require.NoError(t, err)

	job, err := q.Dequeue()
	require.NoError(t, err)

	result, _ := json.Marshal(map[string]any{"success": true})
	require.NoError(t, q.Complete(job.JobID, jobqueue.CompletionResult{Result: result}))

	err = q.Fail(job.JobID, jobqueue.FailureDetail{})
	require.ErrorIs(t, err, jobqueue.ErrJobNotFound)
}

func TestFailMovesFileToFailed(t *testing.T) {
	q := newQueue(t)
	_, err := q.Enqueue(sampleJob("github-issues.opened-abc12345"))
	require.NoError(t, err)

	job, err := q.Dequeue()
	require.NoError(t, err)

	require.NoError(t, q.Fail(job.JobID, jobqueue.FailureDetail{Message: "boom", Type: "AgentCrash"}))
}

func TestRecoverRestoresStuckJob(t *testing.T) {
	dir := t.TempDir()
	q, err := jobqueue.Open(logger.Discard, dir, 10*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = q.Enqueue(sampleJob("github-issues.opened-abc12345"))
	require.NoError(t, err)

	job, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(20 * time.Millisecond)

	recovered, err := q.Recover()
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	again, err := q.WaitForDequeue(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, 1, again.Attempt)
}

func TestWaitForDequeueTimesOutWhenEmpty(t *testing.T) {
	q := newQueue(t)
	start := time.Now()
	job, err := q.WaitForDequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestQueueJSONSurvivesRepeatedRewrite(t *testing.T) {
	dir := t.TempDir()
	q, err := jobqueue.Open(logger.Discard, dir, time.Minute, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(sampleJob("github-issues.opened-" + string(rune('a'+i)) + "1234567"))
		require.NoError(t, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "queue.json"))
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(data, &ids))
	require.Len(t, ids, 5)
}
