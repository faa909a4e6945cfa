package jobs

import (
	"context"

	"github.com/compose-network/throne/x/prover"
)

// Service runs proof generation in the background.
type Service interface {
	Submit(ctx context.Context, req prover.Request) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context) ([]Job, error)
}
