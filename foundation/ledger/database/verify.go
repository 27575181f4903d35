package database

import (
	"fmt"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/hashing"
)

// Set of integrity checks a block can fail, in the order they are applied.
const (
	CheckHash         = "hash"
	CheckDifficulty   = "difficulty"
	CheckPreviousHash = "previous_hash"
	CheckIndex        = "index"
	CheckAnchor       = "anchor"
)

// ChainIntegrityError reports the first block that failed verification and
// which check it failed. The verifier never attempts repair.
type ChainIntegrityError struct {
	Number uint64
	Check  string
}

// Error implements the error interface.
func (cie *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at block %d: check %q failed", cie.Number, cie.Check)
}

// VerifyResult describes a fully successful chain verification.
type VerifyResult struct {
	Blocks       uint64    `json:"blocks"`
	Transactions uint64    `json:"transactions"`
	CheckedAt    time.Time `json:"checked_at"`
}

// =============================================================================

// VerifyChain streams the committed chain from its anchor to the tip,
// recomputing every hash and checking difficulty, linkage, and contiguity.
// The walk is O(n) time and O(1) memory in the chain length. The anchor is
// genesis, or the pruning checkpoint when the chain has been pruned.
func (db *Database) VerifyChain() (VerifyResult, error) {
	start := uint64(0)
	anchorHash := hashing.ZeroHash

	checkpoint, pruned, err := db.Checkpoint()
	if err != nil {
		return VerifyResult{}, err
	}
	if pruned {
		start = checkpoint.Index
	}

	tip := db.LatestBlock().Header.Number

	iter := db.ForEach(start, tip)
	defer iter.Release()

	var result VerifyResult
	expected := start
	prevHash := ""

	for iter.Next() {
		blockData := iter.Block()
		number := blockData.Header.Number

		// (a) The stored hash must recompute from the stored contents.
		recomputed := ToBlock(blockData).Hash()
		if recomputed != blockData.Hash {
			return VerifyResult{}, &ChainIntegrityError{Number: number, Check: CheckHash}
		}

		// (b) Every post-genesis block must carry a solved hash.
		if number > 0 && !hashing.IsSolved(blockData.Header.Difficulty, blockData.Hash) {
			return VerifyResult{}, &ChainIntegrityError{Number: number, Check: CheckDifficulty}
		}

		// (c) Linkage: the first block anchors to the genesis sentinel or
		// the pruning checkpoint; every later block links to its parent.
		switch {
		case number == start && pruned:
			if blockData.Hash != checkpoint.Hash {
				return VerifyResult{}, &ChainIntegrityError{Number: number, Check: CheckAnchor}
			}
		case number == start:
			if blockData.Header.PrevBlockHash != anchorHash {
				return VerifyResult{}, &ChainIntegrityError{Number: number, Check: CheckPreviousHash}
			}
		default:
			if blockData.Header.PrevBlockHash != prevHash {
				return VerifyResult{}, &ChainIntegrityError{Number: number, Check: CheckPreviousHash}
			}
		}

		// (d) Indices are contiguous from the anchor.
		if number != expected {
			return VerifyResult{}, &ChainIntegrityError{Number: number, Check: CheckIndex}
		}

		result.Blocks++
		result.Transactions += uint64(len(blockData.Trans))
		expected++
		prevHash = blockData.Hash
	}
	if err := iter.Err(); err != nil {
		return VerifyResult{}, err
	}

	// A missing tail is a contiguity violation at the first absent index.
	if expected != tip+1 {
		return VerifyResult{}, &ChainIntegrityError{Number: expected, Check: CheckIndex}
	}

	result.CheckedAt = time.Now().UTC()

	return result, nil
}
