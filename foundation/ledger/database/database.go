// Package database handles all the lower level support for maintaining the
// audit chain and the pending pool on disk. Both live in one transactional
// leveldb keyspace so a block commit, the tip advance, and the pool removal
// are a single durable write.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kryptobot/auditchain/foundation/ledger/genesis"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Set of errors for database operations.
var (
	// ErrNotFound is returned when a requested block does not exist.
	ErrNotFound = errors.New("block not found")

	// ErrWrongParent is returned when a block being committed does not
	// extend the current tip. Only the trusted miner calls Commit, so this
	// is defense in depth.
	ErrWrongParent = errors.New("block does not extend the current tip")

	// ErrPersistence is returned when a chain commit cannot be made durable.
	// The pool remains untouched; the miner retries on a later cycle.
	ErrPersistence = errors.New("chain store write failed")

	// ErrQueueWrite is returned when the durable pool append cannot
	// complete. Callers may retry; dedup by event id makes that safe.
	ErrQueueWrite = errors.New("pending pool write failed")
)

// syncWrite makes every mutation durable before it is acknowledged.
var syncWrite = &opt.WriteOptions{Sync: true}

// =============================================================================

// Database manages the committed chain, its query indexes, and the durable
// pending pool.
type Database struct {
	mu sync.RWMutex

	db          *leveldb.DB
	genesis     genesis.Genesis
	latestBlock Block
	pendingSeq  uint64
	evHandler   func(v string, args ...any)
}

// New opens the store at the specified path. A fresh store is initialized
// with the genesis block; an existing store has its tip and pending state
// loaded back into memory.
func New(dbPath string, gen genesis.Genesis, evHandler func(v string, args ...any)) (*Database, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	ldb, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open chain store %q: %w", dbPath, err)
	}

	db := Database{
		db:        ldb,
		genesis:   gen,
		evHandler: ev,
	}

	// Load the tip, writing the genesis block on a fresh store.
	tipData, err := ldb.Get([]byte(keyTip), nil)
	switch {
	case err == nil:
		blockData, err := db.GetBlock(decodeUint64(tipData))
		if err != nil {
			ldb.Close()
			return nil, fmt.Errorf("load tip block: %w", err)
		}
		db.latestBlock = ToBlock(blockData)

	case errors.Is(err, leveldb.ErrNotFound):
		if err := db.writeGenesisBlock(); err != nil {
			ldb.Close()
			return nil, err
		}

	default:
		ldb.Close()
		return nil, fmt.Errorf("load tip: %w", err)
	}

	// Recover the pending pool's arrival sequence from the last pool key.
	iter := ldb.NewIterator(util.BytesPrefix([]byte(prefixPending)), nil)
	if iter.Last() {
		var pending PendingEvent
		if err := json.Unmarshal(iter.Value(), &pending); err != nil {
			iter.Release()
			ldb.Close()
			return nil, fmt.Errorf("recover pending sequence: %w", err)
		}
		db.pendingSeq = pending.Seq
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		ldb.Close()
		return nil, fmt.Errorf("recover pending pool: %w", err)
	}

	ev("database: New: tip[%d] pending[%d]", db.latestBlock.Header.Number, db.mustPendingCount())

	return &db, nil
}

// Close closes the underlying store.
func (db *Database) Close() error {
	return db.db.Close()
}

// writeGenesisBlock initializes a fresh store with block zero.
func (db *Database) writeGenesisBlock() error {
	block := NewGenesisBlock(db.genesis.Difficulty)
	data, err := json.Marshal(NewBlockData(block))
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(0), data)
	batch.Put([]byte(keyTip), encodeUint64(0))
	batch.Put(counterKey("blocks"), encodeUint64(1))

	if err := db.db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("%w: genesis: %w", ErrPersistence, err)
	}

	db.latestBlock = block
	db.evHandler("database: writeGenesisBlock: hash[%s]", block.Hash())

	return nil
}

// =============================================================================

// LatestBlock returns the current tip of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Genesis returns the chain parameters the store was opened with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// GetBlock returns the stored contents of the specified block by number.
func (db *Database) GetBlock(number uint64) (BlockData, error) {
	data, err := db.db.Get(blockKey(number), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return BlockData{}, fmt.Errorf("block %d: %w", number, ErrNotFound)
		}
		return BlockData{}, err
	}

	var blockData BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return BlockData{}, fmt.Errorf("decode block %d: %w", number, err)
	}

	return blockData, nil
}

// Commit atomically persists the block, advances the tip, removes the
// drained events from the pending pool, and maintains the query indexes.
// Either all of those effects survive a crash or none do.
func (db *Database) Commit(block Block, drained []PendingEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Defense in depth: the block must extend the tip we know about.
	if block.Header.PrevBlockHash != db.latestBlock.Hash() {
		return ErrWrongParent
	}
	if block.Header.Number != db.latestBlock.Header.Number+1 {
		return ErrWrongParent
	}

	data, err := json.Marshal(NewBlockData(block))
	if err != nil {
		return fmt.Errorf("%w: encode block: %w", ErrPersistence, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(block.Header.Number), data)
	batch.Put([]byte(keyTip), encodeUint64(block.Header.Number))

	kindCounts := make(map[string]uint64)
	for i, evt := range block.Trans {
		evtData, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("%w: encode event %s: %w", ErrPersistence, evt.ID, err)
		}

		pos := uint32(i)
		batch.Put(eventIndexKey(block.Header.Number, pos), evtData)
		batch.Put(kindIndexKey(evt.Kind, block.Header.Number, pos), encodeUint64(uint64(evt.CreatedAt.UnixNano())))
		batch.Put(committedKey(evt.ID), encodeUint64(block.Header.Number))

		kindCounts[kindCounter(evt.Kind)]++
	}

	for _, pending := range drained {
		batch.Delete(pendingKey(pending.Seq))
		batch.Delete(pendingIDKey(pending.Event.ID))
	}

	if err := db.bumpCounter(batch, "blocks", 1); err != nil {
		return err
	}
	if err := db.bumpCounter(batch, "events", int64(len(block.Trans))); err != nil {
		return err
	}
	if err := db.bumpCounter(batch, "pending", -int64(len(drained))); err != nil {
		return err
	}
	for name, count := range kindCounts {
		if err := db.bumpCounter(batch, name, int64(count)); err != nil {
			return err
		}
	}

	if err := db.db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	db.latestBlock = block
	db.evHandler("database: Commit: blk[%d] hash[%s] txs[%d]", block.Header.Number, block.Hash(), len(block.Trans))

	return nil
}

// =============================================================================

// Iterator provides lazy, in-order access to a range of committed blocks
// without materializing the chain in memory.
type Iterator struct {
	iter    ldbIterator
	end     uint64
	current BlockData
	err     error
	done    bool
}

// ldbIterator is the subset of the leveldb iterator the Iterator needs.
type ldbIterator interface {
	Next() bool
	Value() []byte
	Error() error
	Release()
}

// ForEach returns an iterator walking blocks [start, end] in index order.
// Passing end of zero walks to the current tip.
func (db *Database) ForEach(start, end uint64) *Iterator {
	if end == 0 {
		end = db.LatestBlock().Header.Number
	}

	rng := &util.Range{
		Start: blockKey(start),
		Limit: blockKey(end + 1),
	}

	return &Iterator{
		iter: db.db.NewIterator(rng, nil),
		end:  end,
	}
}

// Next advances to the next block in the range. It reports false when the
// range is exhausted or an error occurred; check Err after the walk.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	if !it.iter.Next() {
		it.err = it.iter.Error()
		it.release()
		return false
	}

	var blockData BlockData
	if err := json.Unmarshal(it.iter.Value(), &blockData); err != nil {
		it.err = err
		it.release()
		return false
	}

	it.current = blockData
	return true
}

// Block returns the block the iterator is positioned on.
func (it *Iterator) Block() BlockData {
	return it.current
}

// Err returns the first error encountered during the walk.
func (it *Iterator) Err() error {
	return it.err
}

// Release frees the iterator's resources. Safe to call more than once.
func (it *Iterator) Release() {
	it.release()
}

func (it *Iterator) release() {
	if !it.done {
		it.done = true
		it.iter.Release()
	}
}

// =============================================================================

// ApproximateSize returns the approximate on-disk size of the store in bytes.
func (db *Database) ApproximateSize() (int64, error) {
	sizes, err := db.db.SizeOf([]util.Range{{Start: []byte("a"), Limit: []byte("z")}})
	if err != nil {
		return 0, err
	}

	return sizes.Sum(), nil
}

// Counter returns the current value of the named statistics counter.
func (db *Database) Counter(name string) (uint64, error) {
	data, err := db.db.Get(counterKey(name), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	return decodeUint64(data), nil
}

// bumpCounter stages a counter adjustment into the batch. Commits are
// serialized by the database mutex so read-modify-write is safe here.
func (db *Database) bumpCounter(batch *leveldb.Batch, name string, delta int64) error {
	current, err := db.Counter(name)
	if err != nil {
		return fmt.Errorf("%w: counter %s: %w", ErrPersistence, name, err)
	}

	next := int64(current) + delta
	if next < 0 {
		next = 0
	}
	batch.Put(counterKey(name), encodeUint64(uint64(next)))

	return nil
}

func (db *Database) mustPendingCount() uint64 {
	count, _ := db.Counter("pending")
	return count
}
