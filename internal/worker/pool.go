// Package worker runs independent jobs concurrently with bounded parallelism.
package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type indexedJob struct {
	index int
	job   Job
}

// Pool manages a pool of workers that execute jobs concurrently.
// Results are reported in submission order.
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	collector  *ResultCollector
	submitted  int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	return NewPoolWithContext(context.Background(), workers)
}

// NewPoolWithContext creates a pool whose jobs observe ctx
func NewPoolWithContext(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers*2),
		collector:  NewResultCollector(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.collector.Set(job.index, job.job.Execute(p.ctx))
		}
	}
}

// Submit queues a job. It must not be called concurrently with itself or Wait.
// After shutdown the job is dropped and its result slot stays nil.
func (p *Pool) Submit(job Job) {
	idx := p.submitted
	p.submitted++

	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- indexedJob{index: idx, job: job}:
	}
}

// Wait waits for all submitted jobs and returns their results in submission
// order. Jobs that never ran because the pool was cancelled have nil results.
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()
	p.cancelFunc()
	return p.collector.Results(p.submitted)
}

// Shutdown cancels in-flight jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Run executes jobs on a fresh pool and returns results aligned with jobs
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}

	pool := NewPoolWithContext(ctx, workers)
	pool.Start()
	for _, job := range jobs {
		pool.Submit(job)
	}
	return pool.Wait()
}

// ResultCollector stores results by position (thread-safe)
type ResultCollector struct {
	results map[int]Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make(map[int]Result),
	}
}

// Set records the result for position i
func (c *ResultCollector) Set(i int, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[i] = result
}

// Results returns the first n results in order; missing positions are nil
func (c *ResultCollector) Results(n int) []Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Result, n)
	for i := range out {
		out[i] = c.results[i]
	}
	return out
}
