package progression

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Service is the progression API exposed to transports.
type Service interface {
	Submit(ctx context.Context, sub Submission, round uint32) ([]Event, error)
	AdvanceRound(ctx context.Context, caller common.Address, from uint32) (RoundState, []Event, error)
	SetRequiredTrials(ctx context.Context, caller common.Address, n uint32) (RoundState, error)
	StartSession(ctx context.Context, caller common.Address, id uint32, player1, player2 common.Address) ([]Event, error)

	Meta(ctx context.Context) (Meta, error)
	CurrentRound(ctx context.Context) (RoundState, error)
	Round(ctx context.Context, id uint32) (RoundState, error)
	Progress(ctx context.Context, round uint32, player common.Address) (PlayerProgress, error)
	LastNonce(ctx context.Context, player common.Address) (uint64, error)
}
