package venue

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finai-nexus/execution-core/internal/types"
)

func btcVenue(id string, taker float64, minQty, maxQty string) Account {
	return Account{
		VenueID:     id,
		DisplayName: id,
		SupportedPairs: map[string]bool{
			"BTC/USDT": true,
		},
		Fees: FeeSchedule{
			Maker: decimal.NewFromFloat(taker / 2),
			Taker: decimal.NewFromFloat(taker),
		},
		Limits: OrderLimits{
			MinQuantity: decimal.RequireFromString(minQty),
			MaxQuantity: decimal.RequireFromString(maxQty),
		},
	}
}

func btcOrder(qty string) *types.Order {
	return &types.Order{
		OrderID:  "ORD_test",
		Symbol:   "BTC/USDT",
		Side:     types.SideBuy,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestSelectVenuePrefersLowestCombinedScore(t *testing.T) {
	// weight factor 10000 turns venue A's 0.1% taker fee into 10 score
	// points and venue B's 0.5% into 50.
	registry := NewRegistry(3, 10_000)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "100"))
	registry.Register(btcVenue("VEN-B", 0.005, "0.001", "100"))
	registry.RecordHeartbeatResult("VEN-A", true, 50)
	registry.RecordHeartbeatResult("VEN-B", true, 20)

	// A: 50 + 10 = 60, B: 20 + 50 = 70.
	selected, err := registry.SelectVenue(btcOrder("1"))
	require.NoError(t, err)
	assert.Equal(t, "VEN-A", selected)

	// With a weight factor that barely prices fees, latency dominates and
	// B's 20ms wins: A: 50.1, B: 20.5.
	registry = NewRegistry(3, 100)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "100"))
	registry.Register(btcVenue("VEN-B", 0.005, "0.001", "100"))
	registry.RecordHeartbeatResult("VEN-A", true, 50)
	registry.RecordHeartbeatResult("VEN-B", true, 20)

	selected, err = registry.SelectVenue(btcOrder("1"))
	require.NoError(t, err)
	assert.Equal(t, "VEN-B", selected)
}

func TestSelectVenueTieBreaks(t *testing.T) {
	// Zero weight factor and equal latency force the fee tie-break.
	registry := NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-B", 0.002, "0.001", "100"))
	registry.Register(btcVenue("VEN-A", 0.005, "0.001", "100"))
	registry.RecordHeartbeatResult("VEN-A", true, 30)
	registry.RecordHeartbeatResult("VEN-B", true, 30)

	selected, err := registry.SelectVenue(btcOrder("1"))
	require.NoError(t, err)
	assert.Equal(t, "VEN-B", selected)

	// Identical fees fall through to lexicographic venue ID.
	registry = NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-B", 0.002, "0.001", "100"))
	registry.Register(btcVenue("VEN-A", 0.002, "0.001", "100"))
	registry.RecordHeartbeatResult("VEN-A", true, 30)
	registry.RecordHeartbeatResult("VEN-B", true, 30)

	selected, err = registry.SelectVenue(btcOrder("1"))
	require.NoError(t, err)
	assert.Equal(t, "VEN-A", selected)
}

func TestSelectVenueQuantityBoundary(t *testing.T) {
	registry := NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "10"))
	registry.RecordHeartbeatResult("VEN-A", true, 10)

	selected, err := registry.SelectVenue(btcOrder("10"))
	require.NoError(t, err)
	assert.Equal(t, "VEN-A", selected)

	_, err = registry.SelectVenue(btcOrder("10.0001"))
	assert.ErrorIs(t, err, types.ErrNoVenue)

	_, err = registry.SelectVenue(btcOrder("0.0001"))
	assert.ErrorIs(t, err, types.ErrNoVenue)
}

func TestSelectVenueFiltersDisconnectedAndUnsupported(t *testing.T) {
	registry := NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "100")) // never heartbeated
	eth := btcVenue("VEN-B", 0.001, "0.001", "100")
	eth.SupportedPairs = map[string]bool{"ETH/USDT": true}
	registry.Register(eth)
	registry.RecordHeartbeatResult("VEN-B", true, 10)

	_, err := registry.SelectVenue(btcOrder("1"))
	assert.ErrorIs(t, err, types.ErrNoVenue)
}

func TestHeartbeatFailoverAndRecovery(t *testing.T) {
	registry := NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "100"))
	registry.RecordHeartbeatResult("VEN-A", true, 10)

	registry.RecordHeartbeatResult("VEN-A", false, 0)
	account, _ := registry.Get("VEN-A")
	assert.Equal(t, StateUnstable, account.ConnectionState)
	assert.Equal(t, 1, account.ConsecutiveFailures)

	registry.RecordHeartbeatResult("VEN-A", false, 0)
	registry.RecordHeartbeatResult("VEN-A", false, 0)
	account, _ = registry.Get("VEN-A")
	assert.Equal(t, StateFailed, account.ConnectionState)

	_, err := registry.SelectVenue(btcOrder("1"))
	assert.ErrorIs(t, err, types.ErrNoVenue)

	// A recovered heartbeat reconnects the venue and clears the counter.
	registry.RecordHeartbeatResult("VEN-A", true, 15)
	account, _ = registry.Get("VEN-A")
	assert.Equal(t, StateConnected, account.ConnectionState)
	assert.Equal(t, 0, account.ConsecutiveFailures)

	selected, err := registry.SelectVenue(btcOrder("1"))
	require.NoError(t, err)
	assert.Equal(t, "VEN-A", selected)
}

func TestLatencyMovingAverage(t *testing.T) {
	registry := NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "100"))

	registry.RecordHeartbeatResult("VEN-A", true, 100)
	account, _ := registry.Get("VEN-A")
	assert.InDelta(t, 100, account.ObservedLatencyMs, 0.0001)

	registry.RecordHeartbeatResult("VEN-A", true, 50)
	account, _ = registry.Get("VEN-A")
	assert.InDelta(t, 85, account.ObservedLatencyMs, 0.0001) // 0.3*50 + 0.7*100
}

func TestDisabledVenueStaysOut(t *testing.T) {
	registry := NewRegistry(3, 0)
	registry.Register(btcVenue("VEN-A", 0.001, "0.001", "100"))
	registry.RecordHeartbeatResult("VEN-A", true, 10)
	registry.Disable("VEN-A")

	_, err := registry.SelectVenue(btcOrder("1"))
	assert.ErrorIs(t, err, types.ErrNoVenue)

	// Healthy heartbeats never re-enable a disabled venue.
	registry.RecordHeartbeatResult("VEN-A", true, 10)
	_, err = registry.SelectVenue(btcOrder("1"))
	assert.ErrorIs(t, err, types.ErrNoVenue)
}

func TestConcurrentHeartbeatsAreIndependent(t *testing.T) {
	registry := NewRegistry(3, 0)
	for i := 0; i < 8; i++ {
		registry.Register(btcVenue(fmt.Sprintf("VEN-%d", i), 0.001, "0.001", "100"))
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id string) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				registry.RecordHeartbeatResult(id, j%5 != 0, float64(10+j))
			}
		}(fmt.Sprintf("VEN-%d", i))
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Len(t, registry.Snapshot(), 8)
}
