package prover

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/journal"
)

// MaxSolutionSize bounds the private solution the circuit hashes.
const MaxSolutionSize = 64

// TrialCircuit proves knowledge of a solution whose SHA-256 is SolutionHash,
// and exposes whether that hash equals the (private) expected hash as IsValid.
//
// Trial, player and round ids are public inputs so a proof cannot be
// replayed for another player or round.
type TrialCircuit struct {
	Solution     [MaxSolutionSize]uints.U8   `gnark:",secret"`
	SolutionLen  frontend.Variable           `gnark:",secret"`
	ExpectedHash [common.HashLength]uints.U8 `gnark:",secret"`

	SolutionHash [common.HashLength]uints.U8 `gnark:",public"`
	TrialID      [2]frontend.Variable        `gnark:",public"`
	PlayerID     [2]frontend.Variable        `gnark:",public"`
	RoundID      frontend.Variable           `gnark:",public"`
	IsValid      frontend.Variable           `gnark:",public"`
}

// Define implements frontend.Circuit.
func (c *TrialCircuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return fmt.Errorf("init uints: %w", err)
	}
	h, err := sha2.New(api)
	if err != nil {
		return fmt.Errorf("init sha2: %w", err)
	}

	api.AssertIsLessOrEqual(c.SolutionLen, MaxSolutionSize)
	for i := range c.Solution {
		api.ToBinary(c.Solution[i].Val, 8)
	}

	h.Write(c.Solution[:])
	digest := h.FixedLengthSum(c.SolutionLen)
	if len(digest) != common.HashLength {
		return fmt.Errorf("unexpected digest length %d", len(digest))
	}

	matches := frontend.Variable(1)
	for i := range digest {
		uapi.ByteAssertEq(digest[i], c.SolutionHash[i])
		eq := api.IsZero(api.Sub(digest[i].Val, c.ExpectedHash[i].Val))
		matches = api.Mul(matches, eq)
	}
	api.AssertIsBoolean(c.IsValid)
	api.AssertIsEqual(c.IsValid, matches)

	// Range checks bind the identifiers into the constraint system.
	api.ToBinary(c.RoundID, 32)
	for i := range c.TrialID {
		api.ToBinary(c.TrialID[i], 128)
		api.ToBinary(c.PlayerID[i], 128)
	}

	return nil
}

var (
	compileOnce sync.Once
	compiled    constraint.ConstraintSystem
	compileErr  error
)

// CompileCircuit compiles TrialCircuit over BN254 once per process.
func CompileCircuit() (constraint.ConstraintSystem, error) {
	compileOnce.Do(func() {
		compiled, compileErr = frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &TrialCircuit{})
	})
	return compiled, compileErr
}

// fullAssignment builds the prover witness.
func fullAssignment(req Request, solutionHash common.Hash, expected common.Hash, isValid bool) *TrialCircuit {
	c := publicAssignment(journal.Journal{
		SolutionHash: solutionHash,
		TrialID:      req.TrialID,
		PlayerID:     req.PlayerID,
		RoundID:      req.RoundID,
		IsValid:      isValid,
	})
	for i := range c.Solution {
		var b byte
		if i < len(req.Solution) {
			b = req.Solution[i]
		}
		c.Solution[i] = uints.NewU8(b)
	}
	c.SolutionLen = len(req.Solution)
	for i := range c.ExpectedHash {
		c.ExpectedHash[i] = uints.NewU8(expected[i])
	}
	return c
}

// publicAssignment rebuilds the public inputs from a journal. Secret inputs
// are zero-filled.
func publicAssignment(j journal.Journal) *TrialCircuit {
	var c TrialCircuit
	for i := range c.Solution {
		c.Solution[i] = uints.NewU8(0)
	}
	c.SolutionLen = 0
	for i := range c.ExpectedHash {
		c.ExpectedHash[i] = uints.NewU8(0)
	}

	for i := range c.SolutionHash {
		c.SolutionHash[i] = uints.NewU8(j.SolutionHash[i])
	}
	c.TrialID[0], c.TrialID[1] = journal.Limbs(j.TrialID)
	c.PlayerID[0], c.PlayerID[1] = journal.Limbs(j.PlayerID)
	c.RoundID = j.RoundID
	if j.IsValid {
		c.IsValid = 1
	} else {
		c.IsValid = 0
	}
	return &c
}
