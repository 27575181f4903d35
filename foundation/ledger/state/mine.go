package state

import (
	"context"
	"errors"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/kryptobot/auditchain/foundation/metrics"
)

// Set of errors for mining operations.
var (
	// ErrNoPendingEvents is returned when a block is requested to be
	// created and the pool is empty. No empty blocks are ever produced.
	ErrNoPendingEvents = errors.New("no pending events to mine")

	// ErrMiningTimeout is returned when the proof-of-work search exceeded
	// its wall-clock timeout or attempt ceiling. The drained events remain
	// in the pool for the next cycle.
	ErrMiningTimeout = errors.New("mining attempt exceeded its limit")

	// ErrMiningHalted is returned while mining is disabled after an
	// integrity failure.
	ErrMiningHalted = errors.New("mining halted pending operator intervention")
)

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. Exactly one attempt runs at a time;
// the periodic worker and ForceMine callers serialize here.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsMiningAllowed() {
		return database.Block{}, ErrMiningHalted
	}

	s.evHandler("state: MineNewBlock: MINING: check pool count")

	// Drain up to a block's worth of the oldest pending events. The pool
	// itself is not mutated until the commit, so an abandoned attempt
	// leaves every event exactly where it was.
	drained, err := s.upcoming()
	if err != nil {
		return database.Block{}, err
	}
	if len(drained) == 0 {
		return database.Block{}, ErrNoPendingEvents
	}

	trans := make([]event.Event, len(drained))
	for i, pending := range drained {
		trans[i] = pending.Event
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d]", len(trans))

	// Bound the attempt: wall-clock timeout plus attempt ceiling.
	if timeout := s.MiningTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t := time.Now()
	block, err := database.POW(ctx, s.genesis.Difficulty, s.db.LatestBlock(), trans, s.attemptCeiling, s.evHandler)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, database.ErrAttemptCeiling) {
			metrics.MiningTimeouts.Inc()
			return database.Block{}, ErrMiningTimeout
		}
		return database.Block{}, err
	}

	// One more cancellation check before committing anything.
	if ctx.Err() != nil {
		metrics.MiningTimeouts.Inc()
		return database.Block{}, ErrMiningTimeout
	}

	s.evHandler("state: MineNewBlock: MINING: commit block and remove pool entries")

	// The block row, the tip advance, and the pool removal are one durable
	// write inside the store.
	if err := s.db.Commit(block, drained); err != nil {
		return database.Block{}, err
	}

	metrics.BlocksMined.Inc()
	metrics.MiningDuration.Observe(time.Since(t).Seconds())
	if count, err := s.db.PendingCount(); err == nil {
		metrics.PendingDepth.Set(float64(count))
	}

	return block, nil
}

// ForceMine runs a single mining attempt on the caller's behalf, blocking
// until it commits, times out, or finds the pool empty.
func (s *State) ForceMine(ctx context.Context) (database.Block, error) {
	s.evHandler("state: ForceMine: requested")
	return s.MineNewBlock(ctx)
}
