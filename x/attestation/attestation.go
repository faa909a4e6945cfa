package attestation

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// SignatureSize is the length of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
	// MessageSize is round(4) || player(20) || solution_hash(32) || nonce(8).
	MessageSize = 4 + common.AddressLength + common.HashLength + 8
)

// Attestation is a backend-signed statement that Player solved the trial
// identified by TrialRoundID with a solution hashing to SolutionHash.
type Attestation struct {
	Player       common.Address `json:"player"`
	SolutionHash common.Hash    `json:"solution_hash"`
	Nonce        uint64         `json:"nonce"`
	TrialRoundID uint32         `json:"trial_round_id"`
	Signature    hexutil.Bytes  `json:"signature"`
}

// Message builds the canonical byte sequence covered by the signature.
func Message(roundID uint32, player common.Address, solutionHash common.Hash, nonce uint64) []byte {
	msg := make([]byte, 0, MessageSize)
	msg = binary.BigEndian.AppendUint32(msg, roundID)
	msg = append(msg, player.Bytes()...)
	msg = append(msg, solutionHash.Bytes()...)
	msg = binary.BigEndian.AppendUint64(msg, nonce)
	return msg
}

// Digest is SHA-256 over Message.
func Digest(roundID uint32, player common.Address, solutionHash common.Hash, nonce uint64) common.Hash {
	return sha256.Sum256(Message(roundID, player, solutionHash, nonce))
}

// Digest returns the digest this attestation's signature covers.
func (a Attestation) Digest() common.Hash {
	return Digest(a.TrialRoundID, a.Player, a.SolutionHash, a.Nonce)
}

// Sign signs the canonical digest with an Ed25519 key.
func Sign(
	key ed25519.PrivateKey,
	roundID uint32,
	player common.Address,
	solutionHash common.Hash,
	nonce uint64,
) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, newError(ErrorTypeInvalidKey, "private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	digest := Digest(roundID, player, solutionHash, nonce)
	return ed25519.Sign(key, digest[:]), nil
}

// Verify reports whether a carries a valid signature by pub.
func Verify(pub ed25519.PublicKey, a Attestation) bool {
	return Check(pub, a) == nil
}

// Check is Verify with a reason.
func Check(pub ed25519.PublicKey, a Attestation) error {
	if len(pub) != ed25519.PublicKeySize {
		return newError(ErrorTypeInvalidKey, "public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if len(a.Signature) != SignatureSize {
		return newError(ErrorTypeInvalidSignature, "signature must be %d bytes, got %d", SignatureSize, len(a.Signature))
	}
	digest := a.Digest()
	if !ed25519.Verify(pub, digest[:], a.Signature) {
		return ErrSignatureMismatch
	}
	return nil
}
