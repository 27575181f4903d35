package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// Checkpoint anchors verification after pruning: it records the number and
// hash of the oldest retained block.
type Checkpoint struct {
	Index uint64 `json:"index"`
	Hash  string `json:"hash"`
}

// Checkpoint returns the pruning checkpoint and whether the chain has been
// pruned at all.
func (db *Database) Checkpoint() (Checkpoint, bool, error) {
	data, err := db.db.Get([]byte(keyCheckpoint), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}

	return checkpoint, true, nil
}

// Prune removes committed blocks older than the cutoff, never the tip, and
// records the checkpoint of the oldest retained block in the same batch.
// Committed event id markers are kept so dedup survives pruning. Pruning is
// irreversible and only ever runs on an explicit operator call.
func (db *Database) Prune(olderThan time.Time) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	start := uint64(0)
	if checkpoint, pruned, err := db.Checkpoint(); err != nil {
		return 0, err
	} else if pruned {
		start = checkpoint.Index
	}

	tip := db.latestBlock.Header.Number
	if tip == 0 {
		return 0, nil
	}
	cutoff := uint64(olderThan.UTC().Unix())

	batch := new(leveldb.Batch)
	var prunedBlocks uint64
	var prunedEvents int64
	kindCounts := make(map[string]int64)

	iter := db.ForEach(start, tip)
	defer iter.Release()

	retained := start
	for iter.Next() {
		blockData := iter.Block()

		// The tip is always retained so the chain never loses its head.
		if blockData.Header.Number == tip || blockData.Header.TimeStamp >= cutoff {
			retained = blockData.Header.Number

			checkpoint, err := json.Marshal(Checkpoint{Index: retained, Hash: blockData.Hash})
			if err != nil {
				return 0, fmt.Errorf("%w: encode checkpoint: %w", ErrPersistence, err)
			}
			batch.Put([]byte(keyCheckpoint), checkpoint)
			break
		}

		batch.Delete(blockKey(blockData.Header.Number))
		for i, evt := range blockData.Trans {
			pos := uint32(i)
			batch.Delete(eventIndexKey(blockData.Header.Number, pos))
			batch.Delete(kindIndexKey(evt.Kind, blockData.Header.Number, pos))
			kindCounts[kindCounter(evt.Kind)]--
			prunedEvents++
		}

		prunedBlocks++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}

	if prunedBlocks == 0 {
		return 0, nil
	}

	if err := db.bumpCounter(batch, "blocks", -int64(prunedBlocks)); err != nil {
		return 0, err
	}
	if err := db.bumpCounter(batch, "events", -prunedEvents); err != nil {
		return 0, err
	}
	for name, delta := range kindCounts {
		if err := db.bumpCounter(batch, name, delta); err != nil {
			return 0, err
		}
	}

	if err := db.db.Write(batch, syncWrite); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	db.evHandler("database: Prune: removed[%d] checkpoint[%d]", prunedBlocks, retained)

	return prunedBlocks, nil
}
