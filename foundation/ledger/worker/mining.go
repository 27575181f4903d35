package worker

import (
	"context"
	"errors"

	"github.com/kryptobot/auditchain/foundation/ledger/state"
)

// miningOperations handles periodic and signaled mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if w.autoMine.Load() && !w.isShutdown() {
				w.runMiningOperation()
			}

		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}

		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes the oldest pending events and attempts to write
// a new block to the chain. Failures are logged and retried on a later
// cycle; event producers already got their answer from Record.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	block, err := w.state.MineNewBlock(context.Background())
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoPendingEvents):
			w.evHandler("worker: runMiningOperation: MINING: no events to mine")
		case errors.Is(err, state.ErrMiningTimeout):
			w.evHandler("worker: runMiningOperation: MINING: TIMEOUT: events stay pooled for the next cycle")
		case errors.Is(err, state.ErrMiningHalted):
			w.evHandler("worker: runMiningOperation: MINING: halted pending operator intervention")
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: committed blk[%d] hash[%s]", block.Header.Number, block.Hash())

	// More work may be queued already; signal another pass rather than
	// waiting for the next tick.
	if count, err := w.state.PendingCount(); err == nil && count > 0 {
		w.SignalStartMining()
	}
}
