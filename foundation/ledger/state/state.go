// Package state is the core API for the audit ledger and implements all the
// business rules and processing.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/genesis"
)

// EventHandler defines a function that is called when activity occurs in
// the processing of recording, mining, and verifying.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for background mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
}

// =============================================================================

// Config represents the configuration required to start the ledger.
type Config struct {
	DBPath         string
	Genesis        genesis.Genesis
	MiningTimeout  time.Duration
	AttemptCeiling uint64
	EvHandler      EventHandler
}

// State manages the audit ledger.
type State struct {
	mu sync.Mutex // The exclusive mining section.

	genesis        genesis.Genesis
	db             *database.Database
	evHandler      EventHandler
	miningTimeout  atomic.Int64
	attemptCeiling uint64
	allowMining    atomic.Bool

	verifyMu   sync.RWMutex
	lastVerify *lastVerify

	Worker Worker
}

// lastVerify caches the outcome of the most recent chain verification
// for reporting through Stats.
type lastVerify struct {
	result    database.VerifyResult
	integrity *database.ChainIntegrityError
	checkedAt time.Time
}

// New constructs a new ledger for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Access the storage for the chain and the pending pool.
	db, err := database.New(cfg.DBPath, cfg.Genesis, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		genesis:        cfg.Genesis,
		db:             db,
		evHandler:      ev,
		attemptCeiling: cfg.AttemptCeiling,
	}

	state.miningTimeout.Store(int64(cfg.MiningTimeout))
	state.allowMining.Store(true)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start the background mining operation.

	return &state, nil
}

// Shutdown cleanly brings the ledger down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer s.db.Close()

	// Stop all mining activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// Genesis returns a copy of the chain parameters.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// LatestBlock returns the current tip of the chain.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// GetBlock returns the stored contents of the specified block.
func (s *State) GetBlock(number uint64) (database.BlockData, error) {
	return s.db.GetBlock(number)
}

// IsMiningAllowed reports whether new mining attempts may run. Mining is
// halted when verification detects an integrity violation and stays halted
// until an operator calls ResumeMining.
func (s *State) IsMiningAllowed() bool {
	return s.allowMining.Load()
}

// ResumeMining re-enables mining after an operator has investigated an
// integrity failure.
func (s *State) ResumeMining() {
	s.allowMining.Store(true)
	s.evHandler("state: ResumeMining: mining re-enabled by operator")
}

// haltMining fails closed: no automatic mining extends a chain whose
// integrity is in question.
func (s *State) haltMining() {
	s.allowMining.Store(false)
	s.evHandler("state: haltMining: MINING HALTED pending operator intervention")
}

// MiningTimeout returns the current wall-clock bound for one attempt.
func (s *State) MiningTimeout() time.Duration {
	return time.Duration(s.miningTimeout.Load())
}

// SetMiningTimeout adjusts the wall-clock bound for future attempts.
func (s *State) SetMiningTimeout(d time.Duration) {
	s.miningTimeout.Store(int64(d))
}
