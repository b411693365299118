package book

import "errors"

// Error taxonomy for the book and its matching pass. ErrInsufficientBalance
// belongs to settlement-side callers; the book itself never returns it.
var (
	ErrInvalidOrder        = errors.New("invalid order")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("caller is not the order's trader")
	ErrPaused              = errors.New("book is paused")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMatchingFailed      = errors.New("could not compute execution terms")
)
