// Package genesis maintains access to the chain parameters file. The
// parameters are fixed for the life of a chain so verification can hold
// every block to the rules it was mined under.
package genesis

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Genesis represents the chain parameters recorded when the ledger is
// first initialized.
type Genesis struct {
	Date          time.Time `json:"date"`
	ChainID       string    `json:"chain_id"`        // Unique id for this ledger instance.
	Difficulty    uint16    `json:"difficulty"`      // Leading zero hex digits required in a block hash.
	TransPerBlock uint16    `json:"trans_per_block"` // Maximum number of events that can be in a block.
}

// =============================================================================

// Load opens and consumes the genesis file at the specified path.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file to the specified path.
func Save(path string, genesis Genesis) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// LoadOrCreate loads the genesis file if one exists, otherwise it writes
// and returns the specified parameters. Once a chain exists its parameters
// come from disk, not configuration.
func LoadOrCreate(path string, defaults Genesis) (Genesis, error) {
	genesis, err := Load(path)
	switch {
	case err == nil:
		return genesis, nil

	case errors.Is(err, fs.ErrNotExist):
		if defaults.Date.IsZero() {
			defaults.Date = time.Now().UTC()
		}
		if err := Save(path, defaults); err != nil {
			return Genesis{}, err
		}
		return defaults, nil

	default:
		return Genesis{}, err
	}
}
