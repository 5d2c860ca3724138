package book

import "errors"

// Rejections surfaced to submitters. A rejected command never mutates the
// book: validation runs before any state change and FOK matching is
// simulated before it commits.
var (
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrOrderNotFound      = errors.New("order not found")
	ErrFOKUnfillable      = errors.New("fok order unfillable")
	ErrExpired            = errors.New("order expired")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
