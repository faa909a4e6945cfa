package attestation

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

// Signer issues attestations with the backend key.
type Signer struct {
	key ed25519.PrivateKey
	log zerolog.Logger
}

// NewSigner wraps a private key.
func NewSigner(key ed25519.PrivateKey, log zerolog.Logger) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, newError(ErrorTypeInvalidKey, "private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	s := &Signer{
		key: key,
		log: log.With().Str("component", "attestation-signer").Logger(),
	}
	s.log.Info().Str("public_key", s.PublicKeyHex()).Msg("Attestation signer initialized")
	return s, nil
}

// Attest produces a signed attestation.
func (s *Signer) Attest(
	trialRoundID uint32,
	player common.Address,
	solutionHash common.Hash,
	nonce uint64,
) (Attestation, error) {
	sig, err := Sign(s.key, trialRoundID, player, solutionHash, nonce)
	if err != nil {
		return Attestation{}, err
	}
	s.log.Debug().
		Str("player", player.Hex()).
		Uint32("trial_round_id", trialRoundID).
		Uint64("nonce", nonce).
		Msg("attestation signed")
	return Attestation{
		Player:       player,
		SolutionHash: solutionHash,
		Nonce:        nonce,
		TrialRoundID: trialRoundID,
		Signature:    sig,
	}, nil
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *Signer) PublicKeyHex() string {
	return hexutil.Encode(s.PublicKey())
}

// Verifier checks attestations against a trusted backend key.
type Verifier struct {
	pub ed25519.PublicKey
}

func NewVerifier(pub ed25519.PublicKey) (*Verifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, newError(ErrorTypeInvalidKey, "public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return &Verifier{pub: pub}, nil
}

func (v *Verifier) Verify(a Attestation) error {
	return Check(v.pub, a)
}

func (v *Verifier) PublicKey() ed25519.PublicKey {
	return v.pub
}

// GenerateKey creates a new Ed25519 key pair.
func GenerateKey(rand io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand)
}

// ParsePrivateKey accepts a 32-byte seed or a 64-byte private key encoded as
// hex (optionally 0x-prefixed) or standard base64.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := decodeKey(s)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, newError(ErrorTypeInvalidKey, "private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// ParsePublicKey accepts a 32-byte public key in hex or base64.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := decodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, newError(ErrorTypeInvalidKey, "public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeSeed returns the hex encoding of the key's seed.
func EncodeSeed(key ed25519.PrivateKey) string {
	return hex.EncodeToString(key.Seed())
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, newError(ErrorTypeInvalidKey, "empty key")
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if raw, err := hex.DecodeString(trimmed); err == nil {
		return raw, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidKey.WithCause(err)
	}
	return raw, nil
}
