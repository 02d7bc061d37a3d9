package utils

import (
	"sync"
)

// WorkerPool runs jobs on a bounded number of goroutines.
type WorkerPool struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool running at most maxWorkers jobs at once.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{semaphore: make(chan struct{}, maxWorkers)}
}

// Submit enqueues a job for execution in the pool. It blocks while the
// pool is full.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// IDSet is a thread-safe set of external listing identifiers.
type IDSet struct {
	mu   sync.RWMutex
	seen map[int64]struct{}
}

// NewIDSet creates a set holding ids.
func NewIDSet(ids ...int64) *IDSet {
	s := &IDSet{seen: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	return s
}

// Add returns true if id was newly added, false if already present.
func (s *IDSet) Add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[id]; exists {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Contains reports whether id is in the set. A nil set contains nothing.
func (s *IDSet) Contains(id int64) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[id]
	return exists
}

// Size returns the number of identifiers tracked.
func (s *IDSet) Size() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
