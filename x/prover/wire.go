package prover

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/throne/x/journal"
)

// ProveRequest is the JSON body of a proof request.
type ProveRequest struct {
	TrialID       string         `json:"trial_id"`
	Solution      SolutionBytes  `json:"solution"`
	PlayerAddress common.Address `json:"player_address"`
	RoundID       uint32         `json:"round_id"`
	ExpectedHash  *common.Hash   `json:"expected_hash,omitempty"`
}

// ToRequest converts the wire form into an engine request.
func (r ProveRequest) ToRequest() (Request, error) {
	if strings.TrimSpace(r.TrialID) == "" {
		return Request{}, ErrInvalidRequest.WithMessage("trial_id is required")
	}
	if r.PlayerAddress == (common.Address{}) {
		return Request{}, ErrInvalidRequest.WithMessage("player_address is required")
	}
	req := Request{
		TrialID:  ParseTrialID(r.TrialID),
		Solution: r.Solution,
		PlayerID: journal.PlayerID(r.PlayerAddress),
		RoundID:  r.RoundID,
	}
	if r.ExpectedHash != nil {
		req.ExpectedHash = *r.ExpectedHash
	}
	return req, nil
}

// NewProveRequest is the inverse of ToRequest.
func NewProveRequest(req Request) (ProveRequest, error) {
	player, ok := journal.PlayerAddress(req.PlayerID)
	if !ok {
		return ProveRequest{}, ErrInvalidRequest.WithMessage("player id %s is not an address", req.PlayerID.Hex())
	}
	out := ProveRequest{
		TrialID:       req.TrialID.Hex(),
		Solution:      SolutionBytes(req.Solution),
		PlayerAddress: player,
		RoundID:       req.RoundID,
	}
	if req.ExpectedHash != (common.Hash{}) {
		h := req.ExpectedHash
		out.ExpectedHash = &h
	}
	return out, nil
}

// ParseTrialID accepts a 0x-prefixed 32-byte hex id or a human readable id.
func ParseTrialID(s string) common.Hash {
	s = strings.TrimSpace(s)
	if len(s) == 2+2*common.HashLength && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		if b, err := hexutil.Decode(s); err == nil {
			return common.BytesToHash(b)
		}
	}
	return journal.TrialID(s)
}

// ProveResponse is the JSON body returned for a generated proof.
type ProveResponse struct {
	Success  bool          `json:"success"`
	Receipt  ProofBytes    `json:"receipt"`
	Journal  hexutil.Bytes `json:"journal"`
	PlayerID common.Hash   `json:"player_id"`
	ImageID  common.Hash   `json:"image_id"`
	IsValid  bool          `json:"is_valid"`
}

// NewProveResponse wraps an artifact for the wire.
func NewProveResponse(a *Artifact) ProveResponse {
	return ProveResponse{
		Success:  true,
		Receipt:  a.Proof,
		Journal:  a.Journal.Encode(),
		PlayerID: a.Journal.PlayerID,
		ImageID:  a.Fingerprint,
		IsValid:  a.Journal.IsValid,
	}
}

// Artifact rebuilds the artifact carried by the response.
func (r ProveResponse) Artifact() (*Artifact, error) {
	j, err := journal.Decode(r.Journal)
	if err != nil {
		return nil, fmt.Errorf("response journal: %w", err)
	}
	return &Artifact{
		Proof:       r.Receipt,
		Journal:     j.WithPlayer(r.PlayerID),
		Fingerprint: r.ImageID,
	}, nil
}

// ImageIDResponse is the JSON body of the fingerprint endpoint.
type ImageIDResponse struct {
	ImageID common.Hash `json:"image_id"`
}

// MarshalJSON emits the solution as 0x-prefixed hex so it survives a
// round trip through UnmarshalJSON unchanged.
func (s SolutionBytes) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(hexutil.Encode(s))
}
