package state

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export formats supported by ExportChain.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportChain streams the committed chain to the writer in the requested
// format without materializing it in memory.
func (s *State) ExportChain(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		return s.exportJSON(w)
	case FormatCSV:
		return s.exportCSV(w)
	}

	return fmt.Errorf("unknown export format %q", format)
}

// exportJSON writes the retained blocks as one JSON array.
func (s *State) exportJSON(w io.Writer) error {
	anchor, err := s.anchorIndex()
	if err != nil {
		return err
	}

	iter := s.db.ForEach(anchor, s.db.LatestBlock().Header.Number)
	defer iter.Release()

	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	first := true
	for iter.Next() {
		if !first {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return err
			}
		}
		first = false

		if err := encoder.Encode(iter.Block()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	_, err = io.WriteString(w, "]\n")
	return err
}

// exportCSV writes one row per committed event.
func (s *State) exportCSV(w io.Writer) error {
	anchor, err := s.anchorIndex()
	if err != nil {
		return err
	}

	iter := s.db.ForEach(anchor, s.db.LatestBlock().Header.Number)
	defer iter.Release()

	cw := csv.NewWriter(w)
	header := []string{"block", "position", "block_hash", "event_id", "kind", "created_at", "payload"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for iter.Next() {
		blockData := iter.Block()
		for i, evt := range blockData.Trans {
			row := []string{
				strconv.FormatUint(blockData.Header.Number, 10),
				strconv.Itoa(i),
				blockData.Hash,
				evt.ID,
				string(evt.Kind),
				evt.CreatedAt.Format(time.RFC3339Nano),
				string(evt.Payload),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func (s *State) anchorIndex() (uint64, error) {
	checkpoint, pruned, err := s.db.Checkpoint()
	if err != nil {
		return 0, err
	}
	if pruned {
		return checkpoint.Index, nil
	}
	return 0, nil
}
