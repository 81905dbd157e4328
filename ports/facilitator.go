package ports

import (
	"context"

	"github.com/layer-3/paygate/core"
)

// FacilitatorResponse is the structured reply of a settlement facilitator
type FacilitatorResponse struct {
	Success     bool
	Transaction string
	Error       string
	Settlement  *core.Settlement
}

// Facilitator executes the real transfer for an encoded intent.
// Transport failures are returned as errors; core.ErrSettlementTimeout
// marks an attempt whose outcome is unknown.
type Facilitator interface {
	Settle(ctx context.Context, encoded string) (*FacilitatorResponse, error)
}
