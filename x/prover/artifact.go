package prover

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/throne/x/journal"
)

// Artifact is a proof together with the journal it commits to and the
// fingerprint of the verifying key it was produced for.
type Artifact struct {
	Proof       ProofBytes
	Journal     journal.Journal
	Fingerprint common.Hash
}

type artifactJSON struct {
	Receipt  ProofBytes    `json:"receipt"`
	Journal  hexutil.Bytes `json:"journal"`
	PlayerID common.Hash   `json:"player_id"`
	ImageID  common.Hash   `json:"image_id"`
}

// MarshalJSON emits the receipt and the 69-byte journal as hex. The player
// id travels next to the journal.
func (a Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(artifactJSON{
		Receipt:  a.Proof,
		Journal:  a.Journal.Encode(),
		PlayerID: a.Journal.PlayerID,
		ImageID:  a.Fingerprint,
	})
}

// UnmarshalJSON decodes the wire form, rejecting malformed journals.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	j, err := journal.Decode(raw.Journal)
	if err != nil {
		return fmt.Errorf("artifact journal: %w", err)
	}
	*a = Artifact{
		Proof:       raw.Receipt,
		Journal:     j.WithPlayer(raw.PlayerID),
		Fingerprint: raw.ImageID,
	}
	return nil
}

// ProofBytes handles flexible JSON representations of proof payloads.
//
// Accepts either 0x-prefixed hex strings, base64 strings, or arrays of byte
// values. MarshalJSON always emits a 0x-prefixed hex string.
type ProofBytes []byte

// UnmarshalJSON implements json.Unmarshaler, allowing multiple encodings.
func (p *ProofBytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	switch data[0] {
	case '[':
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return fmt.Errorf("receipt array must contain integers: %w", err)
		}
		buf := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("receipt byte out of range: %d", v)
			}
			buf[i] = byte(v)
		}
		*p = buf
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("receipt string invalid: %w", err)
		}
		decoded, err := decodeBytesString(s)
		if err != nil {
			return fmt.Errorf("receipt %w", err)
		}
		*p = decoded
		return nil
	}
	return fmt.Errorf("unsupported receipt encoding")
}

// MarshalJSON emits a 0x-prefixed hex string representation.
func (p ProofBytes) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(hexutil.Encode(p))
}

// Clone returns a copy of the underlying slice.
func (p ProofBytes) Clone() ProofBytes {
	if len(p) == 0 {
		return nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	return buf
}

// SolutionBytes accepts a solution as a plain UTF-8 string, a 0x-prefixed hex
// string or an array of byte values.
type SolutionBytes []byte

func (s *SolutionBytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '[' {
		var p ProofBytes
		if err := p.UnmarshalJSON(data); err != nil {
			return err
		}
		*s = SolutionBytes(p)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("solution must be a string or byte array: %w", err)
	}
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		decoded, err := hexutil.Decode(str)
		if err != nil {
			return fmt.Errorf("solution hex decode failed: %w", err)
		}
		*s = decoded
		return nil
	}
	*s = SolutionBytes(str)
	return nil
}

func decodeBytesString(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		decoded, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("hex decode failed: %w", err)
		}
		return decoded, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	return decoded, nil
}
