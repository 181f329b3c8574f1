package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Stealing bounds concurrency at n concurrently executing jobs via a
// weighted semaphore and runs each admitted job on its own goroutine.
// Go's own M:N runtime scheduler — which work-steals goroutines across
// GOMAXPROCS OS threads — supplies the dynamic load balancing across those
// n logical workers that the original project got from handing jobs to
// rayon's global thread pool (§4.8).
type Stealing struct {
	sem *semaphore.Weighted
}

// NewStealing builds a pool that admits at most n jobs at once.
func NewStealing(n uint) (*Stealing, error) {
	if n == 0 {
		n = 1
	}
	return &Stealing{sem: semaphore.NewWeighted(int64(n))}, nil
}

// Spawn blocks until a slot is free, then runs job on its own goroutine and
// releases the slot when it returns.
func (s *Stealing) Spawn(job func()) {
	_ = s.sem.Acquire(context.Background(), 1)
	go func() {
		defer s.sem.Release(1)
		job()
	}()
}
