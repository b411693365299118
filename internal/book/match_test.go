package book

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteMatch_MidpointPrice(t *testing.T) {
	b := New(Config{})
	buyID := submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
	sellID := submit(t, b, "USDC", "WETH", 5, 90, false, "bob")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, buyID, m.BuyOrderID)
	assert.Equal(t, sellID, m.SellOrderID)
	assert.Equal(t, uint64(95), m.ExecutionPrice)
	assert.Equal(t, uint64(5), m.Amount)

	for _, id := range []uint64{buyID, sellID} {
		o, err := b.Order(id)
		require.NoError(t, err)
		assert.Zero(t, o.Amount)
	}
}

func TestExecuteMatch_FullConsumption(t *testing.T) {
	b := New(Config{})
	buyID := submit(t, b, "WETH", "USDC", 10, 100, true, "alice")
	sellID := submit(t, b, "USDC", "WETH", 4, 95, false, "bob")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, uint64(97), m.ExecutionPrice, "(100+95)/2 truncates")
	assert.Equal(t, uint64(4), m.Amount)

	// The buy side's unfilled 6 units are discarded, not left resting.
	buy, err := b.Order(buyID)
	require.NoError(t, err)
	assert.Zero(t, buy.Amount)
	sell, err := b.Order(sellID)
	require.NoError(t, err)
	assert.Zero(t, sell.Amount)
	assert.Empty(t, b.ActiveOrders())
}

func TestExecuteMatch_RetainRemainder(t *testing.T) {
	b := New(Config{RetainRemainder: true})
	buyID := submit(t, b, "WETH", "USDC", 10, 100, true, "alice")
	submit(t, b, "USDC", "WETH", 4, 95, false, "bob")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(4), matches[0].Amount)

	buy, err := b.Order(buyID)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), buy.Amount, "larger side keeps its remainder")

	// The remainder is still matchable by a later pass.
	submit(t, b, "USDC", "WETH", 6, 90, false, "carol")
	matches, err = b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(6), matches[0].Amount)
	assert.Empty(t, b.ActiveOrders())
}

func TestExecuteMatch_NoCross(t *testing.T) {
	b := New(Config{})
	buyID := submit(t, b, "WETH", "USDC", 5, 80, true, "alice")
	sellID := submit(t, b, "USDC", "WETH", 5, 90, false, "bob")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	assert.Empty(t, matches)

	for _, id := range []uint64{buyID, sellID} {
		o, err := b.Order(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), o.Amount)
	}
}

func TestExecuteMatch_Incompatible(t *testing.T) {
	tests := []struct {
		name string
		seed func(t *testing.T, b *Book)
	}{
		{
			name: "SameSide",
			seed: func(t *testing.T, b *Book) {
				submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
				submit(t, b, "USDC", "WETH", 5, 90, true, "bob")
			},
		},
		{
			name: "NotMirrorPairs",
			seed: func(t *testing.T, b *Book) {
				submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
				submit(t, b, "DAI", "WETH", 5, 90, false, "bob")
			},
		},
		{
			name: "SamePairSameDirection",
			seed: func(t *testing.T, b *Book) {
				submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
				submit(t, b, "WETH", "USDC", 5, 90, false, "bob")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Config{})
			tt.seed(t, b)
			matches, err := b.ExecuteMatch()
			require.NoError(t, err)
			assert.Empty(t, matches, "incompatible orders must never match regardless of price")
			assert.Len(t, b.ActiveOrders(), 2)
		})
	}
}

func TestExecuteMatch_SecondRunIsEmpty(t *testing.T) {
	b := New(Config{})
	submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
	submit(t, b, "USDC", "WETH", 5, 90, false, "bob")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = b.ExecuteMatch()
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExecuteMatch_FirstCompatibleInSlotOrderWins(t *testing.T) {
	b := New(Config{})
	buyID := submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
	// Both sells cross; the better price rests later. There is no
	// best-price search, so the earlier slot is taken.
	worseSell := submit(t, b, "USDC", "WETH", 5, 95, false, "bob")
	betterSell := submit(t, b, "USDC", "WETH", 5, 90, false, "carol")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, buyID, matches[0].BuyOrderID)
	assert.Equal(t, worseSell, matches[0].SellOrderID)

	better, err := b.Order(betterSell)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), better.Amount, "unmatched counter-order stays resting")
}

func TestExecuteMatch_MultiplePairsInDiscoveryOrder(t *testing.T) {
	b := New(Config{})
	buy1 := submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
	buy2 := submit(t, b, "DAI", "USDC", 3, 50, true, "alice")
	sell1 := submit(t, b, "USDC", "WETH", 5, 90, false, "bob")
	sell2 := submit(t, b, "USDC", "DAI", 3, 40, false, "bob")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Outer slot ascending: buy1's pairing is found before buy2's.
	assert.Equal(t, buy1, matches[0].BuyOrderID)
	assert.Equal(t, sell1, matches[0].SellOrderID)
	assert.Equal(t, buy2, matches[1].BuyOrderID)
	assert.Equal(t, sell2, matches[1].SellOrderID)
	assert.Less(t, matches[0].Cost, matches[1].Cost, "cost figure grows with scan work within a pass")
	assert.Empty(t, b.ActiveOrders())
}

func TestExecuteMatch_ConsumedOrderSkippedWithinPass(t *testing.T) {
	b := New(Config{})
	submit(t, b, "WETH", "USDC", 5, 100, true, "alice")
	sell1 := submit(t, b, "USDC", "WETH", 5, 90, false, "bob")
	sell2 := submit(t, b, "USDC", "WETH", 5, 90, false, "carol")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1, "a zeroed order must not match twice in one pass")
	assert.Equal(t, sell1, matches[0].SellOrderID)

	o, err := b.Order(sell2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), o.Amount)
}

func TestExecuteMatch_OverflowSkipsOnlyThatPairing(t *testing.T) {
	b := New(Config{})
	// Midpoint of these two limits overflows uint64; the pairing is
	// skipped without poisoning the rest of the pass.
	submit(t, b, "WETH", "USDC", 5, math.MaxUint64, true, "alice")
	submit(t, b, "USDC", "WETH", 5, math.MaxUint64-1, false, "bob")
	buyID := submit(t, b, "DAI", "USDC", 3, 50, true, "carol")
	sellID := submit(t, b, "USDC", "DAI", 3, 40, false, "dave")

	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, buyID, matches[0].BuyOrderID)
	assert.Equal(t, sellID, matches[0].SellOrderID)

	// The skipped pairing's orders remain untouched.
	o, err := b.Order(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), o.Amount)
	o, err = b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), o.Amount)
}

func TestExecuteMatch_EmptyBook(t *testing.T) {
	b := New(Config{})
	matches, err := b.ExecuteMatch()
	require.NoError(t, err)
	assert.Empty(t, matches)
}
