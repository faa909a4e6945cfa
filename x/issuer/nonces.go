package issuer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/throne/x/store"
)

var noncePrefix = []byte("issuer/nonce/")

// NonceFloor reports the highest nonce already consumed for a player, so a
// fresh nonce store never reissues one. *progression.Machine satisfies it.
type NonceFloor interface {
	LastNonce(ctx context.Context, player common.Address) (uint64, error)
}

// Nonces hands out strictly increasing per-player nonces, starting at 1.
type Nonces struct {
	mu    sync.Mutex
	st    store.Store
	floor NonceFloor
}

func NewNonces(st store.Store, floor NonceFloor) *Nonces {
	return &Nonces{st: st, floor: floor}
}

// Next reserves and returns the next nonce for player.
func (n *Nonces) Next(ctx context.Context, player common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	cur, err := n.current(ctx, player)
	if err != nil {
		return 0, err
	}
	if n.floor != nil {
		used, err := n.floor.LastNonce(ctx, player)
		if err != nil {
			return 0, fmt.Errorf("read consumed nonce: %w", err)
		}
		cur = max(cur, used)
	}

	next := cur + 1
	raw, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, fmt.Errorf("encode nonce: %w", err)
	}
	if err := n.st.Set(ctx, nonceKey(player), raw); err != nil {
		return 0, fmt.Errorf("persist nonce: %w", err)
	}
	return next, nil
}

// Current returns the last issued nonce, zero if none.
func (n *Nonces) Current(ctx context.Context, player common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current(ctx, player)
}

// Reset forgets the issued nonce for player.
func (n *Nonces) Reset(ctx context.Context, player common.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Delete(ctx, nonceKey(player))
}

func (n *Nonces) current(ctx context.Context, player common.Address) (uint64, error) {
	raw, err := n.st.Get(ctx, nonceKey(player))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read nonce: %w", err)
	}
	var v uint64
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return 0, fmt.Errorf("decode nonce: %w", err)
	}
	return v, nil
}

func nonceKey(player common.Address) []byte {
	return append(append([]byte(nil), noncePrefix...), player.Bytes()...)
}
