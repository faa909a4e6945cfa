package prover

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/throne/x/journal"
)

func TestArtifact_JSON(t *testing.T) {
	t.Parallel()

	a := Artifact{
		Proof: []byte{0xca, 0xfe},
		Journal: journal.Journal{
			SolutionHash: common.HexToHash("0xaa"),
			TrialID:      journal.TrialID("memoryofcrowns"),
			PlayerID:     journal.PlayerID(common.HexToAddress("0x3333333333333333333333333333333333333333")),
			RoundID:      2,
			IsValid:      true,
		},
		Fingerprint: common.HexToHash("0xff"),
	}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"receipt":"0xcafe"`)

	var back Artifact
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, a.Journal, back.Journal)
	require.Equal(t, a.Fingerprint, back.Fingerprint)
	require.Equal(t, a.Proof, back.Proof)
}

func TestArtifact_RejectsShortJournal(t *testing.T) {
	t.Parallel()

	var a Artifact
	err := json.Unmarshal([]byte(`{"receipt":"0x01","journal":"0x0102"}`), &a)
	require.ErrorIs(t, err, journal.ErrTooShort)
}

func TestProofBytes_Encodings(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		`"0x0102ff"`: {1, 2, 255},
		`"AQL/"`:     {1, 2, 255},
		`[1,2,255]`:  {1, 2, 255},
		`null`:       nil,
		`""`:         nil,
	}
	for in, want := range cases {
		var p ProofBytes
		require.NoError(t, json.Unmarshal([]byte(in), &p), in)
		require.Equal(t, want, []byte(p), in)
	}

	var p ProofBytes
	require.Error(t, json.Unmarshal([]byte(`[256]`), &p))
	require.Error(t, json.Unmarshal([]byte(`{}`), &p))
}

func TestSolutionBytes(t *testing.T) {
	t.Parallel()

	var s SolutionBytes
	require.NoError(t, json.Unmarshal([]byte(`"COLORSIGIL:red"`), &s))
	require.Equal(t, "COLORSIGIL:red", string(s))

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var back SolutionBytes
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, s, back)
}

func TestProveRequest_TrialIDForms(t *testing.T) {
	t.Parallel()

	id := journal.TrialID("patteroracle")
	require.Equal(t, id, ParseTrialID("patteroracle"))
	require.Equal(t, id, ParseTrialID(id.Hex()))

	_, err := ProveRequest{TrialID: "x"}.ToRequest()
	require.ErrorIs(t, err, ErrInvalidRequest)
}
