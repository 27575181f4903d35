package state

import "time"

// Prune removes committed blocks older than the cutoff, keeping a
// checkpoint of the oldest retained block so verification can still
// anchor. This is the only path to the pruned state and it is
// irreversible; it never runs automatically.
func (s *State) Prune(olderThan time.Time) (uint64, error) {

	// Take the mining section so no commit races the batch that rewrites
	// the anchor.
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned, err := s.db.Prune(olderThan)
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		s.evHandler("state: Prune: removed %d blocks older than %s", pruned, olderThan.UTC().Format(time.RFC3339))
	}

	return pruned, nil
}
