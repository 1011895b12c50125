// Package jobs contains the job execution machinery: the bounded in-process
// queue, the dispatcher, and the runner state machine.
package jobs

import "sync"

// InProcessQueue admits tasks through a counting semaphore so at most a
// fixed number of jobs run concurrently. Tasks are not ordered and cannot be
// cancelled once spawned. The queue is not persistent: tasks that never
// started are lost on process restart.
type InProcessQueue struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewInProcessQueue creates a queue with the given number of permits.
// Values below 1 are clamped to 1.
func NewInProcessQueue(permits int) *InProcessQueue {
	if permits < 1 {
		permits = 1
	}
	return &InProcessQueue{sem: make(chan struct{}, permits)}
}

// Spawn hands a task to the scheduler. The task acquires a permit before
// running and releases it when it returns, panics included.
func (q *InProcessQueue) Spawn(task func()) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.sem <- struct{}{}
		defer func() { <-q.sem }()
		task()
	}()
}

// Wait blocks until every spawned task has finished.
func (q *InProcessQueue) Wait() {
	q.wg.Wait()
}
