// Package hashing provides the hash primitives used to chain and
// proof-of-work the audit ledger.
package hashing

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ZeroHash represents a hash code of zeros. It anchors the genesis block
// as the previous-hash sentinel.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// Hash returns a unique hex encoded string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// IsSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading zero hex digits.
func IsSolved(difficulty uint16, hash string) bool {
	const match = "0x00000000000000000"

	if len(hash) != 66 {
		return false
	}

	return hash[2:2+difficulty] == match[2:2+difficulty]
}
