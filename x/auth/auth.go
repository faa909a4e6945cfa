// Package auth recovers the Ethereum address that signed a request body
// with an EIP-191 personal signature.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Header carries the hex-encoded 65-byte signature over the raw request body.
const Header = "X-Signature"

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("malformed signature")
	ErrSignerMismatch   = errors.New("signer does not match")
	ErrStaleRequest     = errors.New("request is outside the accepted window")
)

// Recover returns the address whose key produced sig over
// accounts.TextHash(payload). The recovery id may be 0/1 or 27/28.
func Recover(payload, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id", ErrBadSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(payload), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverHex decodes a 0x-prefixed signature and recovers its signer.
func RecoverHex(payload []byte, sigHex string) (common.Address, error) {
	sigHex = strings.TrimSpace(sigHex)
	if sigHex == "" {
		return common.Address{}, ErrMissingSignature
	}
	if !strings.HasPrefix(sigHex, "0x") && !strings.HasPrefix(sigHex, "0X") {
		sigHex = "0x" + sigHex
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return Recover(payload, sig)
}

// Verify checks that sig over payload was produced by expected.
func Verify(payload, sig []byte, expected common.Address) error {
	got, err := Recover(payload, sig)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrSignerMismatch, got.Hex(), expected.Hex())
	}
	return nil
}

// CheckIssuedAt accepts a body stamped at issuedAt (unix seconds) when it lies
// within maxAge of now in either direction. A zero maxAge accepts anything.
func CheckIssuedAt(issuedAt int64, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	if issuedAt <= 0 {
		return fmt.Errorf("%w: issued_at is required", ErrStaleRequest)
	}
	skew := now.Sub(time.Unix(issuedAt, 0))
	if skew > maxAge || skew < -maxAge {
		return fmt.Errorf("%w: issued %s from now, limit %s", ErrStaleRequest, (-skew).Round(time.Second), maxAge)
	}
	return nil
}

// Config toggles signature enforcement on the HTTP surface.
type Config struct {
	RequireSignatures bool          `mapstructure:"require_signatures" yaml:"require_signatures"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	MaxRequestAge     time.Duration `mapstructure:"max_request_age" yaml:"max_request_age"`
}

func DefaultConfig() Config {
	return Config{
		RequireSignatures: true,
		MaxBodyBytes:      1 << 20,
		MaxRequestAge:     5 * time.Minute,
	}
}
