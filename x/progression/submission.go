package progression

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/prover"
)

// Path names how a submission proves the player solved a trial.
type Path string

const (
	PathSignature Path = "signature"
	PathProof     Path = "proof"
)

// Submission is a claim that Player completed trial number Trial.
type Submission interface {
	Player() common.Address
	Trial() uint32
	Path() Path
}

// AttestationSubmission carries a backend-signed attestation. The
// attestation's TrialRoundID is the trial index.
type AttestationSubmission struct {
	Attestation attestation.Attestation
}

func (s AttestationSubmission) Player() common.Address { return s.Attestation.Player }
func (s AttestationSubmission) Trial() uint32          { return s.Attestation.TrialRoundID }
func (AttestationSubmission) Path() Path               { return PathSignature }

// ProofSubmission carries a proof artifact for trial TrialIndex.
type ProofSubmission struct {
	Address    common.Address
	TrialIndex uint32
	Artifact   *prover.Artifact
}

func (s ProofSubmission) Player() common.Address { return s.Address }
func (s ProofSubmission) Trial() uint32          { return s.TrialIndex }
func (ProofSubmission) Path() Path               { return PathProof }
