package book

import (
	"fmt"
	"time"
)

// Trade is an immutable execution record. The price is always the maker's
// resting price: price-time priority honours the resting order.
type Trade struct {
	TradeID   uint64
	MakerID   uint64
	TakerID   uint64
	Price     Price
	Qty       uint64
	Timestamp time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf("trade %d maker=%d taker=%d px=%s qty=%d",
		t.TradeID, t.MakerID, t.TakerID, t.Price, t.Qty)
}
