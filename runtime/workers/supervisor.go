// Package workers holds the long running goroutines of an engine and the
// supervisor that keeps them alive.
package workers

import (
	"cim/contract"
	"cim/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultRestartDelay = 200 * time.Millisecond

// Supervisor runs a fixed set of workers for the lifetime of one engine.
// A worker that returns nil is done. A worker that fails or panics is
// restarted after a delay until the supervisor is stopped.
type Supervisor struct {
	log     *slog.Logger
	delay   time.Duration
	workers []contract.Worker
	// onRestart is told about every crash before the worker is restarted.
	onRestart func(name string, err error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	running sync.WaitGroup
	done    chan struct{}
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{
		log:       log,
		delay:     defaultRestartDelay,
		onRestart: func(string, error) {},
		done:      make(chan struct{}),
	}
}

// WithRestartInterval changes the delay before a crashed worker is restarted.
func (s *Supervisor) WithRestartInterval(d time.Duration) *Supervisor {
	s.delay = d
	return s
}

func (s *Supervisor) OnRestart(fn func(name string, err error)) *Supervisor {
	s.onRestart = fn
	return s
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every added worker and blocks until all of them returned.
// Canceling ctx or calling Stop ends them. Run must be called once.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	for _, worker := range s.workers {
		s.Start(ctx, worker)
	}
	s.running.Wait()
}

// Start runs one worker in its own goroutine under supervision.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		for ctx.Err() == nil {
			err := runProtected(ctx, worker)
			switch {
			case err == nil:
				s.log.Debug(fmt.Sprintf("Worker finished : %s", name))
				return
			case ctx.Err() != nil:
				s.log.Debug("Worker stopped", "name", name, "error", err)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err, "delay", s.delay)
			s.onRestart(name, err)
			if !sleep(ctx, s.delay) {
				return
			}
		}
	}()
}

// Stop cancels every worker. Before Run it makes Run return at once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until Run returned.
func (s *Supervisor) Wait() {
	<-s.done
}

func runProtected(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
