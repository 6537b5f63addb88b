package server

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrPoolStopped is returned by Do after Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// job represents a unit of work to be executed on a pool goroutine.
type job struct {
	fn   func() error
	done chan error
}

// Pool bounds how many programs execute at once. Each run owns its own VM,
// so workers share nothing but the request queue.
type Pool struct {
	requests chan job
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	size     int
}

// NewPool starts n worker goroutines. n <= 0 selects runtime.NumCPU().
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{
		requests: make(chan job),
		quit:     make(chan struct{}),
		size:     n,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// loop processes jobs until the pool stops.
func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.requests:
			j.done <- p.execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (p *Pool) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in worker: %v", r)
		}
	}()
	return fn()
}

// Do waits for a free worker, runs fn on it and returns fn's error. If ctx
// ends before a worker picks the job up, fn never runs and ctx.Err() is
// returned. Once running, fn is responsible for honoring ctx itself.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case p.requests <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
	return <-j.done
}

// Stop shuts down the workers and waits for running jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}
