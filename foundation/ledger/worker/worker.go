// Package worker implements the background mining operation for the
// audit ledger.
package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/state"
)

// Worker manages the periodic and signaled mining workflows for the ledger.
type Worker struct {
	state       *state.State
	wg          sync.WaitGroup
	ticker      *time.Ticker
	shut        chan struct{}
	startMining chan bool
	autoMine    atomic.Bool
	evHandler   state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up the background mining operation.
func Run(st *state.State, interval time.Duration, autoMine bool, evHandler state.EventHandler) *Worker {
	w := Worker{
		state:       st,
		ticker:      time.NewTicker(interval),
		shut:        make(chan struct{}),
		startMining: make(chan bool, 1),
		evHandler:   evHandler,
	}
	w.autoMine.Store(autoMine)

	// Register this worker with the state package.
	st.Worker = &w

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.ticker.Stop()
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
		w.evHandler("worker: SignalStartMining: mining signaled")
	default:
	}
}

// =============================================================================

// UpdateInterval adjusts the periodic mining cadence at runtime.
func (w *Worker) UpdateInterval(interval time.Duration) {
	if interval > 0 {
		w.ticker.Reset(interval)
		w.evHandler("worker: UpdateInterval: interval[%s]", interval)
	}
}

// SetAutoMine toggles the periodic timer's effect; signaled and forced
// mining keep working either way.
func (w *Worker) SetAutoMine(enabled bool) {
	w.autoMine.Store(enabled)
	w.evHandler("worker: SetAutoMine: enabled[%t]", enabled)
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
