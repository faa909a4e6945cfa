package http

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/x/journal"
	"github.com/compose-network/throne/x/prover"
)

type verifyReq struct {
	Artifact *prover.Artifact `json:"artifact"`
	// ImageID defaults to the server's own fingerprint.
	ImageID *common.Hash `json:"image_id,omitempty"`
}

type verifyResp struct {
	Valid   bool            `json:"valid"`
	Journal journal.Journal `json:"journal"`
}
