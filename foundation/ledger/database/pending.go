package database

import (
	"encoding/json"
	"fmt"

	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// PendingEvent represents an accepted event waiting in the pool together
// with its arrival sequence. Events are mined oldest-first by sequence.
type PendingEvent struct {
	Seq   uint64      `json:"seq"`
	Event event.Event `json:"event"`
}

// Enqueue durably appends the event to the pending pool. An event id that
// is already pending or already committed is absorbed as a no-op; the
// returned flag reports that case so callers can account for it.
func (db *Database) Enqueue(evt event.Event) (duplicate bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Dedup by id across the pool and the committed chain. At-least-once
	// producers retry Record, so a duplicate is a success, not a failure.
	if _, err := db.db.Get(pendingIDKey(evt.ID), nil); err == nil {
		return true, nil
	}
	if _, err := db.db.Get(committedKey(evt.ID), nil); err == nil {
		return true, nil
	}

	db.pendingSeq++
	pending := PendingEvent{
		Seq:   db.pendingSeq,
		Event: evt,
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return false, fmt.Errorf("%w: encode event %s: %w", ErrQueueWrite, evt.ID, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(pendingKey(pending.Seq), data)
	batch.Put(pendingIDKey(evt.ID), encodeUint64(pending.Seq))
	if err := db.bumpCounter(batch, "pending", 1); err != nil {
		return false, fmt.Errorf("%w: %w", ErrQueueWrite, err)
	}

	if err := db.db.Write(batch, syncWrite); err != nil {
		db.pendingSeq--
		return false, fmt.Errorf("%w: %w", ErrQueueWrite, err)
	}

	return false, nil
}

// PendingCount returns the current number of events in the pool.
func (db *Database) PendingCount() (int, error) {
	count, err := db.Counter("pending")
	if err != nil {
		return 0, err
	}

	return int(count), nil
}

// OldestPending returns up to max pool events in arrival order. The pool is
// not mutated; removal only ever happens inside Commit.
func (db *Database) OldestPending(max int) ([]PendingEvent, error) {
	if max <= 0 {
		return nil, nil
	}

	iter := db.db.NewIterator(util.BytesPrefix([]byte(prefixPending)), nil)
	defer iter.Release()

	var pending []PendingEvent
	for iter.Next() {
		var p PendingEvent
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("decode pending event: %w", err)
		}

		pending = append(pending, p)
		if len(pending) == max {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return pending, nil
}

// PendingSnapshot returns a read-only view of up to limit queued events in
// arrival order, for diagnostics.
func (db *Database) PendingSnapshot(limit int) ([]event.Event, error) {
	pending, err := db.OldestPending(limit)
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, len(pending))
	for i, p := range pending {
		events[i] = p.Event
	}

	return events, nil
}
