// Package exposure provides a stand-in portfolio collaborator. The real
// system computes exposure from live positions; this source serves a fixed
// snapshot so the core can run without it.
package exposure

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/types"
)

// StaticSource returns the same snapshot for every client and portfolio.
type StaticSource struct {
	snapshot types.ExposureSnapshot
}

func NewStaticSource(snapshot types.ExposureSnapshot) *StaticSource {
	return &StaticSource{snapshot: snapshot}
}

// NewUnleveragedSource builds a source representing a flat account with the
// given equity and mark prices, useful for demos and local runs.
func NewUnleveragedSource(equity decimal.Decimal, markPrices map[string]decimal.Decimal) *StaticSource {
	return NewStaticSource(types.ExposureSnapshot{
		PositionValue:     decimal.Zero,
		Equity:            equity,
		Leverage:          decimal.Zero,
		RealizedLossToday: decimal.Zero,
		MarkPrices:        markPrices,
	})
}

func (s *StaticSource) GetExposureSnapshot(ctx context.Context, clientID, portfolioID string) (*types.ExposureSnapshot, error) {
	snapshot := s.snapshot
	return &snapshot, nil
}
