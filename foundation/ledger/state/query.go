package state

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/event"
)

// ErrInvalidCursor is returned when an audit trail cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid audit trail cursor")

// Paging bounds for audit trail requests.
const (
	DefaultTrailLimit = 50
	MaxTrailLimit     = 100
)

// TrailFilter narrows an audit trail page request.
type TrailFilter struct {
	Kind   *event.Kind
	Start  time.Time
	End    time.Time
	Limit  int
	Cursor string
}

// TrailPage is one page of committed events in (block, position) order.
// NextCursor is empty when the page was not full.
type TrailPage struct {
	Events     []database.IndexedEvent `json:"events"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// AuditTrail returns a page of committed events matching the filter. The
// cursor is an opaque encoding of the last returned position, so already
// issued cursors never skip or duplicate events while new blocks commit.
func (s *State) AuditTrail(filter TrailFilter) (TrailPage, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = DefaultTrailLimit
	case limit > MaxTrailLimit:
		limit = MaxTrailLimit
	}

	after, err := decodeCursor(filter.Cursor)
	if err != nil {
		return TrailPage{}, err
	}

	events, err := s.db.AuditTrail(database.Filter{
		Kind:  filter.Kind,
		Start: filter.Start,
		End:   filter.End,
		Limit: limit,
		After: after,
	})
	if err != nil {
		return TrailPage{}, err
	}

	page := TrailPage{Events: events}
	if len(events) == limit {
		page.NextCursor = encodeCursor(events[len(events)-1].Position)
	}

	return page, nil
}

// encodeCursor produces the opaque continuation token for a position.
func encodeCursor(pos database.Position) string {
	return base64.RawURLEncoding.EncodeToString(fmt.Appendf(nil, "%d:%d", pos.Block, pos.Pos))
}

// decodeCursor parses a continuation token back into a position.
func decodeCursor(cursor string) (*database.Position, error) {
	if cursor == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	var pos database.Position
	if _, err := fmt.Sscanf(string(data), "%d:%d", &pos.Block, &pos.Pos); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	return &pos, nil
}

// =============================================================================

// Stats describes the current shape of the ledger.
type Stats struct {
	Blocks         uint64                 `json:"blocks"`
	Events         uint64                 `json:"events"`
	Pending        int                    `json:"pending"`
	EventCounts    map[event.Kind]uint64  `json:"event_counts"`
	StorageBytes   int64                  `json:"storage_bytes"`
	MiningAllowed  bool                   `json:"mining_allowed"`
	LastVerify     *database.VerifyResult `json:"last_verify,omitempty"`
	LastVerifyFail string                 `json:"last_verify_failure,omitempty"`
}

// Stats returns block and event counts, the pool depth, the approximate
// storage size, and the cached result of the most recent verification.
func (s *State) Stats() (Stats, error) {
	stats := Stats{
		EventCounts:   make(map[event.Kind]uint64),
		MiningAllowed: s.IsMiningAllowed(),
	}

	var err error
	if stats.Blocks, err = s.db.Counter("blocks"); err != nil {
		return Stats{}, err
	}
	if stats.Events, err = s.db.Counter("events"); err != nil {
		return Stats{}, err
	}
	if stats.Pending, err = s.db.PendingCount(); err != nil {
		return Stats{}, err
	}

	for _, kind := range event.Kinds() {
		count, err := s.db.Counter("kind/" + string(kind))
		if err != nil {
			return Stats{}, err
		}
		if count > 0 {
			stats.EventCounts[kind] = count
		}
	}

	if stats.StorageBytes, err = s.db.ApproximateSize(); err != nil {
		return Stats{}, err
	}

	if result, integrity, checked := s.LastVerify(); checked {
		switch {
		case integrity != nil:
			stats.LastVerifyFail = integrity.Error()
		default:
			stats.LastVerify = &result
		}
	}

	return stats, nil
}

// =============================================================================

// BlocksPage lists committed blocks ascending from the verification anchor,
// using 1-indexed pages. The total is the number of retained blocks.
func (s *State) BlocksPage(page, limit int) ([]database.BlockData, uint64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > MaxTrailLimit {
		limit = DefaultTrailLimit
	}

	anchor := uint64(0)
	if checkpoint, pruned, err := s.db.Checkpoint(); err != nil {
		return nil, 0, err
	} else if pruned {
		anchor = checkpoint.Index
	}

	tip := s.db.LatestBlock().Header.Number
	total := tip - anchor + 1

	start := anchor + uint64(page-1)*uint64(limit)
	if start > tip {
		return nil, total, nil
	}

	end := start + uint64(limit) - 1
	if end > tip {
		end = tip
	}

	iter := s.db.ForEach(start, end)
	defer iter.Release()

	var blocks []database.BlockData
	for iter.Next() {
		blocks = append(blocks, iter.Block())
	}
	if err := iter.Err(); err != nil {
		return nil, 0, err
	}

	return blocks, total, nil
}
