package journal

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TrialID maps a human readable trial identifier onto 32 bytes,
// right-padded with zeros or truncated.
func TrialID(id string) common.Hash {
	var out common.Hash
	copy(out[:], id)
	return out
}

// PlayerID left-pads an address into a 32-byte identifier.
func PlayerID(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// PlayerAddress is the inverse of PlayerID. ok is false if the high 12
// bytes are not zero.
func PlayerAddress(id common.Hash) (common.Address, bool) {
	for _, b := range id[:IDLength-common.AddressLength] {
		if b != 0 {
			return common.Address{}, false
		}
	}
	return common.BytesToAddress(id[IDLength-common.AddressLength:]), true
}

// Limbs splits a 32-byte identifier into two 128-bit big-endian halves so
// it fits the scalar field as public circuit inputs.
func Limbs(id common.Hash) (hi, lo *big.Int) {
	hi = new(big.Int).SetBytes(id[:16])
	lo = new(big.Int).SetBytes(id[16:])
	return hi, lo
}
