package domainevent_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/logger"
	"github.com/stretchr/testify/assert"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := domainevent.NewBus(logger.Discard)

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		bus.Subscribe(domainevent.JobStarted, func(domainevent.Event) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
	}

	bus.Publish(domainevent.New(domainevent.JobStarted, "job", "job-1", "corr-1", nil))

	waitOrTimeout(t, &wg, time.Second)
	assert.EqualValues(t, 3, atomic.LoadInt32(&count))
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	bus := domainevent.NewBus(logger.Discard)

	var wg sync.WaitGroup
	wg.Add(2)
	var survivorRan int32

	bus.Subscribe(domainevent.JobFailed, func(domainevent.Event) {
		defer wg.Done()
		panic("boom")
	})
	bus.Subscribe(domainevent.JobFailed, func(domainevent.Event) {
		defer wg.Done()
		atomic.AddInt32(&survivorRan, 1)
	})

	bus.Publish(domainevent.New(domainevent.JobFailed, "job", "job-1", "corr-1", nil))

	waitOrTimeout(t, &wg, time.Second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&survivorRan))
}

func TestPublishReturnsBeforeHandlersComplete(t *testing.T) {
	bus := domainevent.NewBus(logger.Discard)
	release := make(chan struct{})
	started := make(chan struct{})

	bus.Subscribe(domainevent.JobCompleted, func(domainevent.Event) {
		close(started)
		<-release
	})

	bus.Publish(domainevent.New(domainevent.JobCompleted, "job", "job-1", "corr-1", nil))
	close(release)
	<-started
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for handlers")
	}
}
