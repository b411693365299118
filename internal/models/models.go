package models

import "time"

// Trader represents a registered trader account
type Trader struct {
	ID           int
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Order is a resting intent to trade TokenIn for TokenOut. Every field
// except Amount is fixed at submission; Amount only ever moves toward
// zero, and zero is the sole marker of a filled or cancelled order.
type Order struct {
	ID         uint64    `json:"id"`
	Trader     string    `json:"trader"`
	TokenIn    string    `json:"token_in"`
	TokenOut   string    `json:"token_out"`
	Amount     uint64    `json:"amount"`
	LimitPrice uint64    `json:"limit_price"` // TokenOut per unit of TokenIn
	IsBuy      bool      `json:"is_buy"`
	CreatedAt  time.Time `json:"created_at"`
}

// MatchResult records one settled pairing. It is handed off to the
// settlement step; the engine itself never moves value.
type MatchResult struct {
	BuyOrderID     uint64 `json:"buy_order_id"`
	SellOrderID    uint64 `json:"sell_order_id"`
	ExecutionPrice uint64 `json:"execution_price"`
	Amount         uint64 `json:"amount"`
	Cost           uint64 `json:"cost"` // advisory scan work, not authoritative
}

// MatchRecord pairs a MatchResult with the remaining amounts of both
// orders after the pass, ready for journaling. The remaining amounts
// come from the book, so the mirror never disagrees with the arena.
type MatchRecord struct {
	Result        MatchResult
	BuyRemaining  uint64
	SellRemaining uint64
}

// Match is a MatchResult as journaled in the settlement table.
type Match struct {
	ID             int64     `json:"id"`
	BuyOrderID     uint64    `json:"buy_order_id"`
	SellOrderID    uint64    `json:"sell_order_id"`
	ExecutionPrice uint64    `json:"execution_price"`
	Amount         uint64    `json:"amount"`
	Cost           uint64    `json:"cost"`
	ExecutedAt     time.Time `json:"executed_at"`
}
