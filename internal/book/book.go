// Package book implements a dark-pool limit order book and its matching
// engine. Orders rest in an append-only arena: a slot is assigned at
// submission and never reused, and a remaining amount of zero is the
// sole marker of a filled or cancelled order. Slots are dense, so an
// order's id doubles as its arena index.
package book

import (
	"sync"
	"time"

	"github.com/crosslock/darkpool/internal/models"
)

// Config holds behavior fixed for the lifetime of a Book.
type Config struct {
	// RetainRemainder leaves the larger side of a match resting with
	// its unfilled remainder instead of consuming it entirely. Off by
	// default: the historical behavior zeroes both sides.
	RetainRemainder bool
}

// Book owns the order arena. Every exported method serializes on one
// mutex, so each call observes and commits a single consistent
// snapshot of the book.
type Book struct {
	mu     sync.Mutex
	orders []models.Order
	nextID uint64
	paused bool
	cfg    Config
}

// New creates an empty book.
func New(cfg Config) *Book {
	return &Book{cfg: cfg}
}

// Submit validates and appends a new resting order, returning its id.
// Ids are sequential from zero; a rejected submission consumes no id
// and leaves the book untouched. The trader identity and timestamp are
// supplied by the caller and trusted as-is.
func (b *Book) Submit(tokenIn, tokenOut string, amount, limitPrice uint64, isBuy bool, trader string, ts time.Time) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return 0, ErrPaused
	}
	if amount == 0 {
		return 0, ErrInvalidOrder
	}
	if tokenIn == tokenOut {
		return 0, ErrInvalidOrder
	}
	if tokenIn == "" || tokenOut == "" {
		return 0, ErrInvalidOrder
	}

	id := b.nextID
	b.nextID++
	b.orders = append(b.orders, models.Order{
		ID:         id,
		Trader:     trader,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		Amount:     amount,
		LimitPrice: limitPrice,
		IsBuy:      isBuy,
		CreatedAt:  ts,
	})
	return id, nil
}

// Cancel marks an order inactive by zeroing its remaining amount. Only
// the submitting trader may cancel, and the not-found check comes
// first, so an unknown id reports ErrOrderNotFound for any caller.
// Cancelling an order that is already inactive succeeds silently.
func (b *Book) Cancel(orderID uint64, caller string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return ErrPaused
	}
	if orderID >= uint64(len(b.orders)) {
		return ErrOrderNotFound
	}
	o := &b.orders[orderID]
	if o.Trader != caller {
		return ErrUnauthorized
	}
	o.Amount = 0
	return nil
}

// ActiveOrders returns every order with remaining amount, in insertion
// order.
func (b *Book) ActiveOrders() []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := make([]models.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.Amount > 0 {
			active = append(active, o)
		}
	}
	return active
}

// Order returns a copy of the order with the given id. Ids are dense,
// so the lookup is a direct index.
func (b *Book) Order(id uint64) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id >= uint64(len(b.orders)) {
		return models.Order{}, ErrOrderNotFound
	}
	return b.orders[id], nil
}

// Count reports the total number of slots ever allocated, active and
// inactive alike.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// SetPaused flips the externally administered halt flag. While set,
// Submit, Cancel and ExecuteMatch refuse with ErrPaused; reads are
// unaffected.
func (b *Book) SetPaused(paused bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = paused
}

// Paused reports the halt flag.
func (b *Book) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Rescind removes the most recently submitted order and releases its
// id, undoing a submission whose surrounding operation failed after
// the book had already accepted it. Only the newest slot can be
// rescinded; anything older is committed history.
func (b *Book) Rescind(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.orders)
	if n == 0 || b.orders[n-1].ID != id {
		return ErrOrderNotFound
	}
	b.orders = b.orders[:n-1]
	b.nextID = id
	return nil
}

// Restore replaces the arena with a previously persisted one. Each
// order is placed at its id's slot, so a mirror with gaps restores to
// a dense arena with inactive filler slots in between; the id counter
// resumes after the highest id seen, never reassigning a persisted id.
func (b *Book) Restore(orders []models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var next uint64
	for _, o := range orders {
		if o.ID >= next {
			next = o.ID + 1
		}
	}
	arena := make([]models.Order, next)
	for i := range arena {
		arena[i] = models.Order{ID: uint64(i)}
	}
	for _, o := range orders {
		arena[o.ID] = o
	}
	b.orders = arena
	b.nextID = next
}
