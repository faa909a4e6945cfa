package auth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sign produces an EIP-191 personal signature over payload with v in 27/28,
// matching what wallets return from personal_sign.
func Sign(key *ecdsa.PrivateKey, payload []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(payload), key)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignHex is Sign with a 0x-prefixed hex result, ready for the Header.
func SignHex(key *ecdsa.PrivateKey, payload []byte) (string, error) {
	sig, err := Sign(key, payload)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
