package book

import (
	"math"

	"github.com/crosslock/darkpool/internal/models"
)

// ExecuteMatch runs one full pairwise scan over the arena and settles
// every crossing pair it finds: outer slot ascending, inner slot
// strictly greater. Amounts are read live from the arena, so an order
// consumed earlier in the pass cannot match again. The scan is
// quadratic in the total slot count; inactive slots cost one skip
// each. Returns the match records for the settlement step, in
// discovery order; an empty result is not an error.
func (b *Book) ExecuteMatch() ([]models.MatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return nil, ErrPaused
	}

	var matches []models.MatchResult
	var comparisons uint64

	n := len(b.orders)
	for i := 0; i < n; i++ {
		if b.orders[i].Amount == 0 {
			continue
		}
		for j := i + 1; j < n; j++ {
			if b.orders[j].Amount == 0 {
				continue
			}
			comparisons++
			if !canMatch(&b.orders[i], &b.orders[j]) {
				continue
			}
			res, err := executionTerms(&b.orders[i], &b.orders[j])
			if err != nil {
				// A pairing whose terms cannot be computed is skipped;
				// the rest of the pass is unaffected.
				continue
			}
			res.Cost = comparisons
			matches = append(matches, res)
			b.settle(i, j, res.Amount)
			if b.orders[i].Amount == 0 {
				break
			}
		}
	}
	return matches, nil
}

// canMatch reports whether two orders form a crossable pair: opposite
// sides, exact mirror token pairs, and a buy limit at or above the
// sell limit.
func canMatch(a, b *models.Order) bool {
	if a.IsBuy == b.IsBuy {
		return false
	}
	if a.TokenIn != b.TokenOut || a.TokenOut != b.TokenIn {
		return false
	}
	buy, sell := a, b
	if !a.IsBuy {
		buy, sell = b, a
	}
	return buy.LimitPrice >= sell.LimitPrice
}

// executionTerms computes the truncated midpoint execution price and
// the matched amount for a crossable pair. Fails with
// ErrMatchingFailed when the price sum overflows.
func executionTerms(a, b *models.Order) (models.MatchResult, error) {
	buy, sell := a, b
	if !a.IsBuy {
		buy, sell = b, a
	}
	if buy.LimitPrice > math.MaxUint64-sell.LimitPrice {
		return models.MatchResult{}, ErrMatchingFailed
	}
	return models.MatchResult{
		BuyOrderID:     buy.ID,
		SellOrderID:    sell.ID,
		ExecutionPrice: (buy.LimitPrice + sell.LimitPrice) / 2,
		Amount:         min(buy.Amount, sell.Amount),
	}, nil
}

// settle applies a matched amount to both slots. The historical
// behavior consumes both orders entirely even when one side's resting
// amount exceeded the match; RetainRemainder instead leaves the larger
// side resting with what the match did not take.
func (b *Book) settle(i, j int, matched uint64) {
	if b.cfg.RetainRemainder {
		b.orders[i].Amount -= matched
		b.orders[j].Amount -= matched
		return
	}
	b.orders[i].Amount = 0
	b.orders[j].Amount = 0
}
