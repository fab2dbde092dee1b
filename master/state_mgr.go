package master

import (
	"context"
	"sync"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/arloliu/go-ecat/logger"
)

// stateMgr owns the master state.
//
// The state only changes through set and swap, which are called by successful transitions.
// Readers may load it from any goroutine.
type stateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    ecat.AtomicState
	master   *Master
	logger   logger.Logger
	handlers []StateChangeHandler
}

func newStateMgr(m *Master, l logger.Logger, handlers ...StateChangeHandler) *stateMgr {
	sm := &stateMgr{
		master:   m,
		logger:   l,
		handlers: handlers,
	}
	sm.state.Store(ecat.StateNone)
	sm.cond = sync.NewCond(&sm.mu)

	return sm
}

// State returns the current master state.
func (sm *stateMgr) State() ecat.State {
	return sm.state.Load()
}

// Is returns true if the master state currently equals state.
func (sm *stateMgr) Is(state ecat.State) bool {
	return sm.state.Is(state)
}

// WaitState waits for the master state to reach state or until ctx is done.
func (sm *stateMgr) WaitState(ctx context.Context, state ecat.State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.Is(state) {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.cond.Broadcast()
	})
	defer stopFunc()

	for !sm.Is(state) {
		if err := ctx.Err(); err != nil {
			sm.logger.Debug("wait master state done", "cur_state", sm.State(), "desired_state", state, "error", err)
			return err
		}
		sm.cond.Wait()
	}

	return nil
}

// set commits newState, wakes up waiters and invokes the handlers when the state changed.
func (sm *stateMgr) set(newState ecat.State) {
	sm.notify(sm.swap(newState), newState)
}

// swap commits newState and wakes up waiters, returning the previous state.
// Handlers are not invoked, the caller passes the result to notify once it released its locks.
func (sm *stateMgr) swap(newState ecat.State) ecat.State {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prevState := sm.state.Swap(newState)
	sm.cond.Broadcast()

	return prevState
}

func (sm *stateMgr) notify(prevState ecat.State, newState ecat.State) {
	if prevState == newState {
		return
	}

	sm.logger.Info("master state changed", "prev_state", prevState, "new_state", newState)

	for _, handler := range sm.handlers {
		handler(sm.master, prevState, newState)
	}
}
