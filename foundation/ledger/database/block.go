package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/kryptobot/auditchain/foundation/ledger/hashing"
)

// ErrAttemptCeiling is returned from POW when the nonce search exhausts the
// configured attempt ceiling without finding a solution.
var ErrAttemptCeiling = errors.New("mining attempt ceiling reached")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64 `json:"number"`          // Block number in the chain, genesis = 0.
	TimeStamp     uint64 `json:"timestamp"`       // Time the block was mined.
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
	Difficulty    uint16 `json:"difficulty"`      // Number of leading 0's needed to solve the hash solution.
}

// Block represents a group of audit events committed together. The hash
// covers the header and the serialized events, so any retroactive edit to
// either is detectable.
type Block struct {
	Header BlockHeader   `json:"header"`
	Trans  []event.Event `json:"trans"`
}

// NewGenesisBlock constructs block zero of a new chain. It carries no
// events and is exempt from the proof-of-work requirement.
func NewGenesisBlock(difficulty uint16) Block {
	return Block{
		Header: BlockHeader{
			Number:        0,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			PrevBlockHash: hashing.ZeroHash,
			Nonce:         0,
			Difficulty:    difficulty,
		},
	}
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The search is bounded by the context
// deadline and the attempt ceiling; on either bound the candidate is
// discarded and no state has changed.
func POW(ctx context.Context, difficulty uint16, prevBlock Block, trans []event.Event, attemptCeiling uint64, ev func(v string, args ...any)) (Block, error) {
	nb := Block{
		Header: BlockHeader{
			Number:        prevBlock.Header.Number + 1,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			PrevBlockHash: prevBlock.Hash(),
			Nonce:         0,
			Difficulty:    difficulty,
		},
		Trans: trans,
	}

	if err := nb.performPOW(ctx, attemptCeiling, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, attemptCeiling uint64, ev func(v string, args ...any)) error {
	ev("database: performPOW: MINING: started: blk[%d]: txs[%d]", b.Header.Number, len(b.Trans))
	defer ev("database: performPOW: MINING: completed: blk[%d]", b.Header.Number)

	// The nonce search starts at zero and walks upward so a given candidate
	// block always resolves to the same solution.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED: blk[%d]", b.Header.Number)
			return ctx.Err()
		}

		if attemptCeiling > 0 && attempts > attemptCeiling {
			ev("database: performPOW: MINING: CEILING: blk[%d]: attempts[%d]", b.Header.Number, attempts)
			return ErrAttemptCeiling
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !hashing.IsSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: performPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block covering the header and the
// serialized events.
func (b Block) Hash() string {
	return hashing.Hash(b)
}

// ValidateBlock takes a block and validates it to be included into the chain
// after the specified previous block.
func (b Block) ValidateBlock(previousBlock Block, ev func(v string, args ...any)) error {
	ev("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	if !hashing.IsSolved(b.Header.Difficulty, b.Hash()) {
		return fmt.Errorf("%s invalid block hash", b.Hash())
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: block carries events", b.Header.Number)

	if len(b.Trans) == 0 {
		return fmt.Errorf("block %d carries no events", b.Header.Number)
	}

	return nil
}

// =============================================================================

// BlockData represents what is written to the block table on disk.
type BlockData struct {
	Hash   string        `json:"hash"`
	Header BlockHeader   `json:"block"`
	Trans  []event.Event `json:"trans"`
}

// NewBlockData constructs the value to serialize to disk.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans,
	}
}

// ToBlock converts a stored BlockData into a Block.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header: blockData.Header,
		Trans:  blockData.Trans,
	}
}
