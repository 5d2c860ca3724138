package book

import (
	"fmt"
	"time"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType uint8

const (
	// Limit orders buy or sell at a specified price or better and may
	// rest on the book until filled.
	Limit OrderType = iota
	// Market orders execute immediately against the best available
	// prices with no guarantee on the execution price. They never rest.
	Market
	// Stop orders are parked off-book and become market orders once the
	// last trade price crosses their trigger.
	Stop
	// StopLimit orders are parked like stops but become limit orders at
	// their carried limit price when triggered.
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop-limit"
	}
	return "unknown"
}

type TimeInForce uint8

const (
	// GTC rests any unfilled remainder until cancelled.
	GTC TimeInForce = iota
	// GTD rests until the carried expiry, after which the remainder is
	// expired off the book.
	GTD
	// FOK fills completely and immediately or rejects without touching
	// the book.
	FOK
	// IOC fills what it can immediately and cancels the remainder.
	IOC
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "gtc"
	case GTD:
		return "gtd"
	case FOK:
		return "fok"
	case IOC:
		return "ioc"
	}
	return "unknown"
}

type OrderStatus uint8

const (
	Active OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
	Expired
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Active:
		return "active"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Terminal reports whether the status is final. An order transitions to a
// terminal status exactly once and is then removed from the live index.
func (s OrderStatus) Terminal() bool {
	switch s {
	case Filled, Cancelled, Expired, Rejected:
		return true
	}
	return false
}

// OrderSpec is the caller-supplied description of an order. The book
// assigns identity (ID, sequence) at admission; callers never construct
// Orders directly.
type OrderSpec struct {
	Side      Side
	Type      OrderType
	TIF       TimeInForce
	Price     float64   // Limit price; ignored for pure market orders
	StopPrice float64   // Trigger price; stop and stop-limit only
	Qty       uint64    // Requested volume, must be positive
	ExpiresAt time.Time // GTD only
}

// Order is a live or retired order. Once admitted it is owned exclusively
// by the OrderBook; external holders keep only the ID and read copies.
type Order struct {
	ID           uint64      // Book-assigned identity
	Side         Side        //
	Type         OrderType   //
	TIF          TimeInForce //
	Price        Price       // Limit price, zero for market
	StopPrice    Price       // Trigger price, stop orders only
	OriginalQty  uint64      // Total volume requested
	RemainingQty uint64      // Unfilled volume
	Seq          uint64      // Admission sequence, time-priority tie-break
	Status       OrderStatus //
	ExpiresAt    time.Time   // GTD expiry
	SubmittedAt  time.Time   // Time of admission into the book
}

// FilledQty returns the volume executed so far.
func (o *Order) FilledQty() uint64 {
	return o.OriginalQty - o.RemainingQty
}

// fill decrements the remaining quantity and moves the status to Filled
// or PartiallyFilled. Quantities are validated by the matcher, which
// never trades more than either side has remaining.
func (o *Order) fill(qty uint64) {
	o.RemainingQty -= qty
	if o.RemainingQty == 0 {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("order %d %s %s %s px=%s qty=%d/%d seq=%d status=%s",
		o.ID, o.Side, o.Type, o.TIF, o.Price, o.RemainingQty, o.OriginalQty, o.Seq, o.Status)
}
