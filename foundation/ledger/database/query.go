package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Position identifies a committed event by its block number and its
// position within that block. Audit trail pages are ordered by Position.
type Position struct {
	Block uint64 `json:"block"`
	Pos   uint32 `json:"pos"`
}

// IndexedEvent is a committed event together with its chain position.
type IndexedEvent struct {
	Position Position    `json:"position"`
	Event    event.Event `json:"event"`
}

// Filter narrows an audit trail walk. A nil Kind matches every kind; zero
// times disable the respective bound. After resumes a walk exclusively
// past a previously returned position.
type Filter struct {
	Kind  *event.Kind
	Start time.Time
	End   time.Time
	Limit int
	After *Position
}

// AuditTrail returns up to Limit committed events matching the filter in
// (block, position) order. The walk uses the secondary indexes and never
// loads block bodies, so already-issued positions stay stable while new
// blocks are committed.
func (db *Database) AuditTrail(filter Filter) ([]IndexedEvent, error) {
	if filter.Limit <= 0 {
		return nil, nil
	}

	if filter.Kind != nil {
		return db.auditTrailByKind(filter)
	}

	rng := util.BytesPrefix([]byte(prefixEventIndex))
	if filter.After != nil {
		rng.Start = eventIndexKey(filter.After.Block, filter.After.Pos+1)
	}

	iter := db.db.NewIterator(rng, nil)
	defer iter.Release()

	var page []IndexedEvent
	for iter.Next() {
		pos, err := parsePositionKey(iter.Key())
		if err != nil {
			return nil, err
		}

		var evt event.Event
		if err := json.Unmarshal(iter.Value(), &evt); err != nil {
			return nil, fmt.Errorf("decode indexed event at %d/%d: %w", pos.Block, pos.Pos, err)
		}

		if !inTimeRange(evt.CreatedAt, filter.Start, filter.End) {
			continue
		}

		page = append(page, IndexedEvent{Position: pos, Event: evt})
		if len(page) == filter.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return page, nil
}

// auditTrailByKind walks the kind index, consulting the event index only
// for rows that survive the time filter.
func (db *Database) auditTrailByKind(filter Filter) ([]IndexedEvent, error) {
	kind := *filter.Kind

	rng := util.BytesPrefix(kindIndexPrefix(kind))
	if filter.After != nil {
		rng.Start = kindIndexKey(kind, filter.After.Block, filter.After.Pos+1)
	}

	iter := db.db.NewIterator(rng, nil)
	defer iter.Release()

	var page []IndexedEvent
	for iter.Next() {
		pos, err := parsePositionKey(iter.Key())
		if err != nil {
			return nil, err
		}

		// The kind index stores the creation time, so rows outside the
		// requested range are skipped without touching the event index.
		createdAt := time.Unix(0, int64(decodeUint64(iter.Value()))).UTC()
		if !inTimeRange(createdAt, filter.Start, filter.End) {
			continue
		}

		data, err := db.db.Get(eventIndexKey(pos.Block, pos.Pos), nil)
		if err != nil {
			return nil, fmt.Errorf("indexed event at %d/%d: %w", pos.Block, pos.Pos, err)
		}

		var evt event.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode indexed event at %d/%d: %w", pos.Block, pos.Pos, err)
		}

		page = append(page, IndexedEvent{Position: pos, Event: evt})
		if len(page) == filter.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return page, nil
}

// =============================================================================

// parsePositionKey extracts the (block, position) pair that terminates
// every event and kind index key.
func parsePositionKey(key []byte) (Position, error) {
	s := string(key)
	if len(s) < 25 {
		return Position{}, fmt.Errorf("malformed index key %q", s)
	}

	block, err := strconv.ParseUint(s[len(s)-25:len(s)-9], 16, 64)
	if err != nil {
		return Position{}, fmt.Errorf("malformed index key %q: %w", s, err)
	}

	pos, err := strconv.ParseUint(s[len(s)-8:], 16, 32)
	if err != nil {
		return Position{}, fmt.Errorf("malformed index key %q: %w", s, err)
	}

	return Position{Block: block, Pos: uint32(pos)}, nil
}

func inTimeRange(t time.Time, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
