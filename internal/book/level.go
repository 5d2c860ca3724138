package book

// priceLevel is a strict FIFO queue of orders resting at one price,
// ordered by admission sequence ascending. Every member has remaining
// quantity and a non-terminal status; an emptied level is deleted from
// its side immediately.
type priceLevel struct {
	price        Price
	orders       []*Order
	aggregateQty uint64
}

// push appends an order at tail position. Orders are admitted in
// sequence order by the single writer, so append preserves FIFO.
func (l *priceLevel) push(o *Order) {
	l.orders = append(l.orders, o)
	l.aggregateQty += o.RemainingQty
}

// head returns the oldest resting order, or nil if the level is empty.
func (l *priceLevel) head() *Order {
	if len(l.orders) == 0 {
		return nil
	}
	return l.orders[0]
}

// popHead removes the oldest order. Its remaining quantity must already
// have been drained by the matcher.
func (l *priceLevel) popHead() {
	l.orders[0] = nil
	l.orders = l.orders[1:]
}

// remove deletes an order by ID wherever it sits in the queue,
// preserving the order of the remainder. Returns false if the ID is not
// a member.
func (l *priceLevel) remove(id uint64) bool {
	for i, o := range l.orders {
		if o.ID == id {
			l.aggregateQty -= o.RemainingQty
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

// reduce subtracts executed or cancelled-down volume from the aggregate.
func (l *priceLevel) reduce(qty uint64) {
	l.aggregateQty -= qty
}

func (l *priceLevel) empty() bool {
	return len(l.orders) == 0
}
