package state

import (
	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/kryptobot/auditchain/foundation/metrics"
)

// Record durably appends a validated event to the pending pool. It returns
// as soon as the pool write is durable and never waits on mining. Safe for
// concurrent use by multiple collaborators.
func (s *State) Record(evt event.Event) error {
	duplicate, err := s.db.Enqueue(evt)
	if err != nil {
		return err
	}

	if duplicate {
		metrics.EventsDeduplicated.Inc()
		s.evHandler("state: Record: duplicate event absorbed: %s", evt)
		return nil
	}

	metrics.EventsRecorded.WithLabelValues(string(evt.Kind)).Inc()
	s.evHandler("state: Record: queued: %s", evt)

	count, err := s.db.PendingCount()
	if err == nil {
		metrics.PendingDepth.Set(float64(count))

		// A full block's worth of events is waiting; let the worker mine
		// ahead of its next tick.
		if s.Worker != nil && count >= int(s.genesis.TransPerBlock) {
			s.Worker.SignalStartMining()
		}
	}

	return nil
}

// RecordTrade validates and records a trade event.
func (s *State) RecordTrade(id string, trade event.Trade) (event.Event, error) {
	return s.recordNew(event.NewTrade(id, trade))
}

// RecordOrder validates and records an order event.
func (s *State) RecordOrder(id string, order event.Order) (event.Event, error) {
	return s.recordNew(event.NewOrder(id, order))
}

// RecordSystemChange validates and records a system change event.
func (s *State) RecordSystemChange(id string, change event.SystemChange) (event.Event, error) {
	return s.recordNew(event.NewSystemChange(id, change))
}

// RecordLogin validates and records a login event.
func (s *State) RecordLogin(id string, login event.Login) (event.Event, error) {
	return s.recordNew(event.NewLogin(id, login))
}

// RecordConfigChange validates and records a config change event.
func (s *State) RecordConfigChange(id string, change event.ConfigChange) (event.Event, error) {
	return s.recordNew(event.NewConfigChange(id, change))
}

func (s *State) recordNew(evt event.Event, err error) (event.Event, error) {
	if err != nil {
		metrics.EventsRejected.Inc()
		return event.Event{}, err
	}

	if err := s.Record(evt); err != nil {
		return event.Event{}, err
	}

	return evt, nil
}

// PendingEvents returns a read-only snapshot of up to limit queued events
// in arrival order. The pool is not mutated.
func (s *State) PendingEvents(limit int) ([]event.Event, error) {
	return s.db.PendingSnapshot(limit)
}

// PendingCount returns the current depth of the pending pool.
func (s *State) PendingCount() (int, error) {
	return s.db.PendingCount()
}

// upcoming returns the events for the next candidate block in arrival order.
func (s *State) upcoming() ([]database.PendingEvent, error) {
	return s.db.OldestPending(int(s.genesis.TransPerBlock))
}
