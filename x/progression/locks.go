package progression

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// playerLocks serializes submissions per player. Players sharing a stripe
// contend, which is safe.
type playerLocks struct {
	stripes []sync.Mutex
}

func newPlayerLocks(n int) *playerLocks {
	if n <= 0 {
		n = 1
	}
	return &playerLocks{stripes: make([]sync.Mutex, n)}
}

func (l *playerLocks) lock(player common.Address) func() {
	idx := binary.BigEndian.Uint32(player[common.AddressLength-4:]) % uint32(len(l.stripes))
	mu := &l.stripes[idx]
	mu.Lock()
	return mu.Unlock
}
