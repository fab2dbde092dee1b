// Package task manages the goroutines owned by a master session.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-ecat/logger"
)

// Func is executed by a task goroutine. It returns false to stop the task.
type Func func() bool

// ErrStopped is returned when a task is started on a stopped manager.
var ErrStopped = errors.New("task manager already stopped")

// ErrWaitTimeout is returned by Wait when the tasks did not terminate in time.
var ErrWaitTimeout = errors.New("timeout waiting for tasks to terminate")

// Manager starts goroutines bound to a shared context and waits for their termination.
//
// Stop cancels the context of every task, Wait blocks until all of them returned.
// A manager can be reused after Wait returned.
type Manager struct {
	pctx   context.Context
	logger logger.Logger

	mu     sync.RWMutex // protects ctx and cancel
	ctx    context.Context
	cancel context.CancelFunc

	taskMu sync.RWMutex // protects task creation during Wait
	wg     sync.WaitGroup
	count  atomic.Int32
	names  sync.Map // map[string]struct{}
}

// NewManager creates a Manager with the given parent context.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// StartInterval runs fn every interval until it returns false or the manager is stopped.
func (mgr *Manager) StartInterval(name string, fn Func, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	ctx, err := mgr.begin(name)
	if err != nil {
		return err
	}

	mgr.logger.Debug("start interval task", "name", name, "interval", interval)

	go mgr.run(name, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.call(name, fn) {
					return
				}
			}
		}
	})

	return nil
}

// Stop signals all running tasks to terminate.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait blocks until all tasks terminated or timeout expired.
// After a successful wait the manager accepts new tasks again.
func (mgr *Manager) Wait(timeout time.Duration) error {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	done := make(chan struct{})
	go func() {
		mgr.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		mgr.logger.Error("wait tasks timeout", "timeout", timeout, "task_count", mgr.TaskCount())
		return ErrWaitTimeout
	}

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()

	return nil
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) begin(name string) (context.Context, error) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	ctx := mgr.context()
	if ctx.Err() != nil {
		return nil, ErrStopped
	}

	if _, loaded := mgr.names.LoadOrStore(name, struct{}{}); loaded {
		return nil, fmt.Errorf("task %s already exists", name)
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	return ctx, nil
}

func (mgr *Manager) run(name string, body func()) {
	defer func() {
		mgr.names.Delete(name)
		mgr.count.Add(-1)
		mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		mgr.wg.Done()
	}()

	body()
}

// call executes fn with panic protection, a panicking task keeps running.
func (mgr *Manager) call(name string, fn Func) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = true
		}
	}()

	return fn()
}
