// Package executor provides background task executors for the
// natives module.
package executor

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("executor stopped")

// Config sizes a Pool.
type Config struct {
	// Workers is the number of worker goroutines.  Zero means
	// runtime.NumCPU().
	Workers int `yaml:"workers" json:"workers"`

	// Queue is the capacity of the task queue.  When it is full,
	// Submit parks the task on its own goroutine until there is
	// room, so Submit never blocks.
	Queue int `yaml:"queue" json:"queue"`
}

// DefaultQueue is the queue capacity used when Config.Queue is zero.
const DefaultQueue = 64

// Pool is a fixed set of worker goroutines fed from a queue.
//
// A Pool is meant to be created once per process and handed to
// whatever needs an executor.
type Pool struct {
	cfg    Config
	logger zerolog.Logger

	tasks     chan func()
	startOnce sync.Once
	wg        sync.WaitGroup

	// overflow counts tasks parked waiting for queue room.
	overflow sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// New makes a Pool.  The workers start on the first Start or Submit.
func New(cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Queue <= 0 {
		cfg.Queue = DefaultQueue
	}
	return &Pool{
		cfg:    cfg,
		logger: logger.With().Str("component", "executor").Logger(),
		tasks:  make(chan func(), cfg.Queue),
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// Start launches the workers.  Calling Start more than once is
// harmless.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Debug().
			Int("workers", p.cfg.Workers).
			Int("queue", p.cfg.Queue).
			Msg("starting")
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.work(i)
		}
	})
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker", id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
		}
	}()
	task()
}

// Submit queues task and returns at once.
func (p *Pool) Submit(task func()) error {
	p.Start()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
	}

	p.overflow.Add(1)
	p.logger.Debug().Msg("queue full; parking task")
	go func() {
		defer p.overflow.Done()
		p.tasks <- task
	}()
	return nil
}

// Stop refuses new tasks and waits for queued tasks to finish or for
// ctx to be done.
func (p *Pool) Stop(ctx context.Context) error {
	p.Start()

	p.mu.Lock()
	first := !p.stopped
	p.stopped = true
	p.mu.Unlock()

	if first {
		// Parked tasks still need the queue open.
		go func() {
			p.overflow.Wait()
			close(p.tasks)
		}()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug().Msg("stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Goroutines is an executor that runs each task on a new goroutine.
// It never refuses a task.
type Goroutines struct{}

// Submit starts task on a new goroutine.
func (Goroutines) Submit(task func()) error {
	go task()
	return nil
}
