package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Wire layout of the committed proof output.
const (
	IDLength = common.HashLength

	solutionHashOffset = 0
	trialIDOffset      = solutionHashOffset + IDLength
	roundIDOffset      = trialIDOffset + IDLength
	isValidOffset      = roundIDOffset + 4

	// Size is the canonical encoded length: hash(32) || trial(32) || round(4) || valid(1).
	Size = isValidOffset + 1
)

// Journal is the public output committed by a trial proof.
//
// PlayerID is a public input of the proof but is not part of the 69-byte wire
// layout; it travels next to the encoded journal and is restored with WithPlayer.
type Journal struct {
	SolutionHash common.Hash `json:"solution_hash"`
	TrialID      common.Hash `json:"trial_id"`
	PlayerID     common.Hash `json:"player_id"`
	RoundID      uint32      `json:"round_id"`
	IsValid      bool        `json:"is_valid"`
}

// Encode returns the canonical 69-byte encoding of j.
func Encode(j Journal) []byte {
	buf := make([]byte, Size)
	copy(buf[solutionHashOffset:trialIDOffset], j.SolutionHash[:])
	copy(buf[trialIDOffset:roundIDOffset], j.TrialID[:])
	binary.BigEndian.PutUint32(buf[roundIDOffset:isValidOffset], j.RoundID)
	if j.IsValid {
		buf[isValidOffset] = 1
	}
	return buf
}

// Encode is a method alias of the package level Encode.
func (j Journal) Encode() []byte {
	return Encode(j)
}

// Decode parses the 69-byte journal prefix of buf. Bytes past Size belong to
// producers that append their own fields and are ignored. It never panics:
// input shorter than Size yields ErrTooShort and a validity byte other than
// 0 or 1 yields ErrMalformed.
func Decode(buf []byte) (Journal, error) {
	hash, err := field(buf, solutionHashOffset, IDLength)
	if err != nil {
		return Journal{}, err
	}
	trial, err := field(buf, trialIDOffset, IDLength)
	if err != nil {
		return Journal{}, err
	}
	round, err := field(buf, roundIDOffset, 4)
	if err != nil {
		return Journal{}, err
	}
	valid, err := field(buf, isValidOffset, 1)
	if err != nil {
		return Journal{}, err
	}

	j := Journal{
		SolutionHash: common.BytesToHash(hash),
		TrialID:      common.BytesToHash(trial),
		RoundID:      binary.BigEndian.Uint32(round),
	}
	switch valid[0] {
	case 0:
	case 1:
		j.IsValid = true
	default:
		return Journal{}, newDecodeError(ErrorTypeMalformed, isValidOffset, "invalid flag 0x%02x", valid[0])
	}
	return j, nil
}

// WithPlayer returns a copy of j bound to the given player id.
func (j Journal) WithPlayer(player common.Hash) Journal {
	j.PlayerID = player
	return j
}

// String is used in log lines.
func (j Journal) String() string {
	return fmt.Sprintf("journal{trial=%s round=%d valid=%t hash=%s}",
		j.TrialID.TerminalString(), j.RoundID, j.IsValid, j.SolutionHash.TerminalString())
}

// field is the only way Decode reads buf.
func field(buf []byte, offset, length int) ([]byte, error) {
	end := offset + length
	if end > len(buf) {
		return nil, newDecodeError(ErrorTypeTooShort, offset, "need %d bytes, got %d", Size, len(buf))
	}
	return buf[offset:end], nil
}
