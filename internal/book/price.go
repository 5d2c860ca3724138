package book

import (
	"math"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places prices are rounded to on
// construction. Two inputs that differ by less than half a tick at this
// scale construct equal prices and land on the same level.
const PriceScale = 8

// Price is a finite, non-negative price rounded to PriceScale decimal
// places. The zero value is a zero price, which market orders carry.
type Price struct {
	dec decimal.Decimal
}

// NewPrice validates and rounds a raw float into a Price. NaN, infinite
// and negative inputs fail with ErrInvalidPrice.
func NewPrice(v float64) (Price, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Price{}, ErrInvalidPrice
	}
	return Price{dec: decimal.NewFromFloat(v).Round(PriceScale)}, nil
}

// MustPrice is NewPrice for literals known to be valid. It panics on
// invalid input and is intended for tests and constants.
func MustPrice(v float64) Price {
	p, err := NewPrice(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Cmp returns -1, 0 or 1 comparing p against q.
func (p Price) Cmp(q Price) int { return p.dec.Cmp(q.dec) }

// Equal reports precision-bounded equality.
func (p Price) Equal(q Price) bool { return p.dec.Equal(q.dec) }

// LessThan reports p < q.
func (p Price) LessThan(q Price) bool { return p.dec.LessThan(q.dec) }

// GreaterThan reports p > q.
func (p Price) GreaterThan(q Price) bool { return p.dec.GreaterThan(q.dec) }

// IsZero reports whether p is the zero price.
func (p Price) IsZero() bool { return p.dec.IsZero() }

// Float64 returns the nearest float64 representation.
func (p Price) Float64() float64 {
	f, _ := p.dec.Float64()
	return f
}

// Sub returns the signed difference p - q. The result is a plain decimal
// rather than a Price since differences may be negative.
func (p Price) Sub(q Price) decimal.Decimal { return p.dec.Sub(q.dec) }

// Mid returns the midpoint of p and q.
func (p Price) Mid(q Price) float64 {
	f, _ := p.dec.Add(q.dec).Div(decimal.NewFromInt(2)).Float64()
	return f
}

// PctChange returns the percentage change from base to p. A zero base
// fails with ErrArithmeticOverflow rather than producing an unorderable
// value.
func (p Price) PctChange(base Price) (float64, error) {
	if base.dec.IsZero() {
		return 0, ErrArithmeticOverflow
	}
	f, _ := p.dec.Sub(base.dec).Div(base.dec).Mul(decimal.NewFromInt(100)).Float64()
	return f, nil
}

func (p Price) String() string { return p.dec.StringFixed(2) }
