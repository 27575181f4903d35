package database

import (
	"encoding/binary"
	"fmt"

	"github.com/kryptobot/auditchain/foundation/ledger/event"
)

// The ledger keeps its logical tables in one leveldb keyspace, partitioned
// by prefix. Keeping everything in one keyspace is what lets a commit cover
// the block table, the pending pool, and the indexes in a single batch.
const (
	prefixBlock      = "b/" // block number -> BlockData
	prefixPending    = "p/" // arrival seq -> PendingEvent
	prefixPendingID  = "q/" // event id -> arrival seq
	prefixCommitted  = "e/" // event id -> block number
	prefixEventIndex = "x/" // (block, position) -> event
	prefixKindIndex  = "k/" // (kind, block, position) -> created_at
	prefixCounter    = "s/" // counter name -> uint64

	keyTip        = "t"
	keyCheckpoint = "c"
)

func blockKey(number uint64) []byte {
	return fmt.Appendf(nil, "%s%016x", prefixBlock, number)
}

func pendingKey(seq uint64) []byte {
	return fmt.Appendf(nil, "%s%016x", prefixPending, seq)
}

func pendingIDKey(id string) []byte {
	return fmt.Appendf(nil, "%s%s", prefixPendingID, id)
}

func committedKey(id string) []byte {
	return fmt.Appendf(nil, "%s%s", prefixCommitted, id)
}

func eventIndexKey(block uint64, pos uint32) []byte {
	return fmt.Appendf(nil, "%s%016x/%08x", prefixEventIndex, block, pos)
}

func kindIndexKey(kind event.Kind, block uint64, pos uint32) []byte {
	return fmt.Appendf(nil, "%s%s/%016x/%08x", prefixKindIndex, kind, block, pos)
}

func kindIndexPrefix(kind event.Kind) []byte {
	return fmt.Appendf(nil, "%s%s/", prefixKindIndex, kind)
}

func counterKey(name string) []byte {
	return fmt.Appendf(nil, "%s%s", prefixCounter, name)
}

func kindCounter(kind event.Kind) string {
	return "kind/" + string(kind)
}

// =============================================================================

func encodeUint64(v uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, v)
	return data
}

func decodeUint64(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
