package book

import (
	"sort"
	"time"

	"github.com/tidwall/btree"
)

// levels is a price-sorted tree of price levels. Bids sort greatest
// first, asks least first, so Min is always the best level of a side.
type levels = btree.BTreeG[*priceLevel]

// OrderBook holds both sides of one instrument's book and owns the
// matching algorithm. It is not safe for concurrent use: all mutation
// goes through the single sequencer goroutine that owns the book, and
// readers only ever see snapshots taken by that goroutine.
type OrderBook struct {
	bids *levels
	asks *levels

	// Parked stop orders keyed by trigger price. Buy stops fire when the
	// last trade price rises to the trigger, so the lowest trigger sorts
	// first; sell stops fire on a fall and sort highest first.
	buyStops  *levels
	sellStops *levels

	index   map[uint64]*Order // live orders, resting or parked
	retired map[uint64]*Order // terminal orders kept for audit lookups

	trades []Trade  // append-only audit sequence
	gtd    []*Order // resting GTD orders sorted by expiry ascending

	nextOrderID uint64
	nextTradeID uint64
	nextSeq     uint64

	lastTrade Price
	hasLast   bool

	stats Stats
}

func NewOrderBook() *OrderBook {
	byPriceDesc := func(a, b *priceLevel) bool { return a.price.GreaterThan(b.price) }
	byPriceAsc := func(a, b *priceLevel) bool { return a.price.LessThan(b.price) }
	return &OrderBook{
		bids:      btree.NewBTreeG(byPriceDesc),
		asks:      btree.NewBTreeG(byPriceAsc),
		buyStops:  btree.NewBTreeG(byPriceAsc),
		sellStops: btree.NewBTreeG(byPriceDesc),
		index:     make(map[uint64]*Order),
		retired:   make(map[uint64]*Order),
	}
}

// Submit validates and admits an incoming order, matches it against
// resting liquidity and rests or discards any remainder according to its
// time in force. It returns the assigned order ID and the trades the
// submission produced, including trades from stop orders it triggered.
//
// A returned error is a rejection: the book is left exactly as if the
// order had never been submitted, except that the rejected order is
// retained for audit lookups when an ID was assigned.
func (b *OrderBook) Submit(spec OrderSpec) (uint64, []Trade, error) {
	if err := validateSpec(spec); err != nil {
		b.stats.OrdersRejected++
		return 0, nil, err
	}

	o := b.admit(spec)

	// A GTD order already past its expiry never enters the book.
	if o.TIF == GTD && !o.ExpiresAt.After(time.Now()) {
		o.Status = Rejected
		b.retire(o)
		return o.ID, nil, ErrExpired
	}

	// Stop orders never match directly. They park in the trigger index
	// until the last trade price crosses their trigger, unless the
	// current last trade already satisfies it.
	if o.Type == Stop || o.Type == StopLimit {
		if !b.hasLast || !stopTriggered(o, b.lastTrade) {
			b.parkStop(o)
			b.stats.OrdersAccepted++
			return o.ID, nil, nil
		}
		b.convertStop(o)
	}

	trades, err := b.run(o)
	if err != nil {
		return o.ID, nil, err
	}
	b.stats.OrdersAccepted++
	return o.ID, trades, nil
}

// Cancel removes a live order from the book and marks it Cancelled.
// Unknown or already-terminal IDs return false and mutate nothing.
func (b *OrderBook) Cancel(id uint64) bool {
	o, ok := b.index[id]
	if !ok || o.Status.Terminal() {
		return false
	}
	b.detach(o)
	o.Status = Cancelled
	b.retire(o)
	return true
}

// Modify changes a live order's price and/or quantity. A nil field is
// left unchanged. A price change or a quantity increase forfeits time
// priority: the order is re-sequenced at tail, and a price change is
// rerun through matching since it may now cross. A quantity decrease is
// applied in place and keeps the order's queue position.
func (b *OrderBook) Modify(id uint64, newPrice *float64, newQty *uint64) ([]Trade, error) {
	o, ok := b.index[id]
	if !ok || o.Status.Terminal() {
		return nil, ErrOrderNotFound
	}
	if newQty != nil && *newQty == 0 {
		return nil, ErrInvalidQuantity
	}

	var px Price
	if newPrice != nil {
		p, err := NewPrice(*newPrice)
		if err != nil || p.IsZero() {
			return nil, ErrInvalidPrice
		}
		px = p
	}

	parked := o.Type == Stop || o.Type == StopLimit
	priceChanged := newPrice != nil && !px.Equal(o.Price)

	if priceChanged && parked {
		// A parked stop is off-book, so rewriting the limit price it
		// will carry on trigger has no priority implications. A pure
		// stop has no limit price to change.
		if o.Type == Stop {
			return nil, ErrInvalidPrice
		}
		o.Price = px
		priceChanged = false
	}

	if priceChanged {
		b.detach(o)
		o.Price = px
		o.Seq = b.seq()
		if newQty != nil {
			resizeOrder(o, *newQty)
		}
		return b.run(o)
	}

	if newQty == nil || *newQty == o.RemainingQty {
		return nil, nil
	}

	if *newQty < o.RemainingQty {
		// In-place decrease keeps time priority.
		delta := o.RemainingQty - *newQty
		resizeOrder(o, *newQty)
		if l := b.levelOf(o); l != nil {
			l.reduce(delta)
		}
		return nil, nil
	}

	// Increase is re-admitted at tail to prevent priority gaming.
	b.detach(o)
	o.Seq = b.seq()
	resizeOrder(o, *newQty)
	if parked {
		b.parkStop(o)
		return nil, nil
	}
	b.rest(o)
	return nil, nil
}

// BestBid returns the highest resting bid price.
func (b *OrderBook) BestBid() (Price, bool) {
	if l, ok := b.bids.Min(); ok {
		return l.price, true
	}
	return Price{}, false
}

// BestAsk returns the lowest resting ask price.
func (b *OrderBook) BestAsk() (Price, bool) {
	if l, ok := b.asks.Min(); ok {
		return l.price, true
	}
	return Price{}, false
}

// LastTrade returns the price of the most recent execution.
func (b *OrderBook) LastTrade() (Price, bool) {
	return b.lastTrade, b.hasLast
}

// Order returns a copy of a live or retired order by ID.
func (b *OrderBook) Order(id uint64) (Order, bool) {
	if o, ok := b.index[id]; ok {
		return *o, true
	}
	if o, ok := b.retired[id]; ok {
		return *o, true
	}
	return Order{}, false
}

// TradeLog returns the most recent trades from the audit sequence, up to
// limit. A non-positive limit returns the whole log.
func (b *OrderBook) TradeLog(limit int) []Trade {
	start := 0
	if limit > 0 && len(b.trades) > limit {
		start = len(b.trades) - limit
	}
	out := make([]Trade, len(b.trades)-start)
	copy(out, b.trades[start:])
	return out
}

// Stats returns a copy of the book's running counters.
func (b *OrderBook) Stats() Stats {
	return b.stats
}

// ExpireDue expires resting GTD orders whose expiry has passed, removing
// them from the book. Returns the IDs expired. Orders that reached a
// terminal state before their expiry are skipped.
func (b *OrderBook) ExpireDue(now time.Time) []uint64 {
	var expired []uint64
	for len(b.gtd) > 0 {
		o := b.gtd[0]
		if o.Status.Terminal() {
			b.gtd = b.gtd[1:]
			continue
		}
		if o.ExpiresAt.After(now) {
			break
		}
		b.gtd = b.gtd[1:]
		b.detach(o)
		o.Status = Expired
		b.retire(o)
		expired = append(expired, o.ID)
	}
	return expired
}

// --- matching -----------------------------------------------------------

// run matches an admitted order and handles its remainder. FOK orders
// are checked for full fillability before any mutation so a shortfall
// leaves the book untouched.
func (b *OrderBook) run(o *Order) ([]Trade, error) {
	if o.TIF == FOK && !b.fillable(o) {
		o.Status = Rejected
		b.retire(o)
		return nil, ErrFOKUnfillable
	}
	trades := b.execute(o)
	b.place(o)
	// Stop triggers are consulted synchronously within the same logical
	// step, so observers only ever see states consistent with a sequence
	// of atomic submissions.
	trades = append(trades, b.triggerStops()...)
	return trades, nil
}

// execute consumes crossing liquidity from the opposing side in strict
// price-time priority: best level first, oldest order within the level
// first. Trades print at the maker's resting price.
func (b *OrderBook) execute(o *Order) []Trade {
	opp := b.asks
	if o.Side == Sell {
		opp = b.bids
	}

	var trades []Trade
	for o.RemainingQty > 0 {
		level, ok := opp.MinMut()
		if !ok || !crosses(o, level.price) {
			break
		}

		maker := level.head()
		qty := min(o.RemainingQty, maker.RemainingQty)

		trades = append(trades, b.recordTrade(maker, o, qty))
		maker.fill(qty)
		o.fill(qty)
		level.reduce(qty)

		if maker.RemainingQty == 0 {
			level.popHead()
			b.retire(maker)
		}
		if level.empty() {
			opp.Delete(level)
		}
	}
	return trades
}

// place decides what happens to an order after the matching pass:
// retire it when filled, cancel the remainder for market and IOC
// semantics, or rest the remainder on its own side.
func (b *OrderBook) place(o *Order) {
	if o.RemainingQty == 0 {
		b.retire(o)
		return
	}
	if o.Type == Market || o.TIF == IOC {
		o.Status = Cancelled
		b.retire(o)
		return
	}
	b.rest(o)
}

// rest inserts an order at tail position of its price level, creating
// the level if absent.
func (b *OrderBook) rest(o *Order) {
	side := b.bids
	if o.Side == Sell {
		side = b.asks
	}
	level, ok := side.GetMut(&priceLevel{price: o.Price})
	if !ok {
		level = &priceLevel{price: o.Price}
		side.Set(level)
	}
	level.push(o)
	if o.TIF == GTD {
		b.trackExpiry(o)
	}
}

// fillable simulates a full fill against current crossing liquidity
// without mutating anything. Used for the FOK all-or-nothing contract.
func (b *OrderBook) fillable(o *Order) bool {
	opp := b.asks
	if o.Side == Sell {
		opp = b.bids
	}
	var avail uint64
	opp.Scan(func(l *priceLevel) bool {
		if !crosses(o, l.price) {
			return false
		}
		avail += l.aggregateQty
		return avail < o.RemainingQty
	})
	return avail >= o.RemainingQty
}

// crosses reports whether an incoming order trades at the given opposing
// best price. Market orders cross any price.
func crosses(o *Order, best Price) bool {
	if o.Type == Market {
		return true
	}
	if o.Side == Buy {
		return !best.GreaterThan(o.Price)
	}
	return !best.LessThan(o.Price)
}

func (b *OrderBook) recordTrade(maker, taker *Order, qty uint64) Trade {
	b.nextTradeID++
	t := Trade{
		TradeID:   b.nextTradeID,
		MakerID:   maker.ID,
		TakerID:   taker.ID,
		Price:     maker.Price,
		Qty:       qty,
		Timestamp: time.Now(),
	}
	b.trades = append(b.trades, t)
	b.lastTrade = maker.Price
	b.hasLast = true
	b.stats.TradesMatched++
	b.stats.VolumeTraded += qty
	b.stats.LastTradeAt = t.Timestamp
	return t
}

// --- stop orders --------------------------------------------------------

// stopTriggered reports whether the last trade price crosses a parked
// stop's trigger: buy stops fire at or above, sell stops at or below.
func stopTriggered(o *Order, last Price) bool {
	if o.Side == Buy {
		return !last.LessThan(o.StopPrice)
	}
	return !last.GreaterThan(o.StopPrice)
}

func (b *OrderBook) parkStop(o *Order) {
	tree := b.buyStops
	if o.Side == Sell {
		tree = b.sellStops
	}
	level, ok := tree.GetMut(&priceLevel{price: o.StopPrice})
	if !ok {
		level = &priceLevel{price: o.StopPrice}
		tree.Set(level)
	}
	level.push(o)
	// A parked GTD stop expires like a resting order would.
	if o.TIF == GTD {
		b.trackExpiry(o)
	}
}

// convertStop rewrites a triggered stop in place: a pure stop becomes a
// market order, a stop-limit becomes a limit order at its carried price.
func (b *OrderBook) convertStop(o *Order) {
	if o.Type == StopLimit {
		o.Type = Limit
	} else {
		o.Type = Market
		o.Price = Price{}
	}
}

// triggerStops drains every stop whose trigger the last trade price now
// crosses, converting each and resubmitting it through the normal
// matching pass. Trades produced may trigger further stops; the cascade
// runs to completion within the same step.
func (b *OrderBook) triggerStops() []Trade {
	var trades []Trade
	for b.hasLast {
		o := b.popTriggeredStop()
		if o == nil {
			break
		}
		b.convertStop(o)
		t, err := b.run(o)
		if err != nil {
			// A triggered FOK stop with insufficient liquidity has no
			// submitter to reject to; it dies Rejected in the audit log.
			continue
		}
		trades = append(trades, t...)
	}
	return trades
}

// popTriggeredStop removes and returns the next stop order whose trigger
// is crossed by the last trade price, or nil when none qualify. The
// nearest trigger on each side is the tree's Min by construction.
func (b *OrderBook) popTriggeredStop() *Order {
	for _, tree := range []*levels{b.buyStops, b.sellStops} {
		level, ok := tree.MinMut()
		if !ok {
			continue
		}
		o := level.head()
		if o == nil || !stopTriggered(o, b.lastTrade) {
			continue
		}
		level.reduce(o.RemainingQty)
		level.popHead()
		if level.empty() {
			tree.Delete(level)
		}
		return o
	}
	return nil
}

// --- bookkeeping --------------------------------------------------------

func validateSpec(spec OrderSpec) error {
	if spec.Qty == 0 {
		return ErrInvalidQuantity
	}
	if spec.Type == Limit || spec.Type == StopLimit {
		p, err := NewPrice(spec.Price)
		if err != nil {
			return err
		}
		if p.IsZero() {
			return ErrInvalidPrice
		}
	}
	if spec.Type == Stop || spec.Type == StopLimit {
		p, err := NewPrice(spec.StopPrice)
		if err != nil {
			return err
		}
		if p.IsZero() {
			return ErrInvalidPrice
		}
	}
	return nil
}

// admit constructs the book-owned order for a validated spec, assigning
// its identity and admission sequence atomically with admission.
func (b *OrderBook) admit(spec OrderSpec) *Order {
	b.nextOrderID++
	o := &Order{
		ID:           b.nextOrderID,
		Side:         spec.Side,
		Type:         spec.Type,
		TIF:          spec.TIF,
		OriginalQty:  spec.Qty,
		RemainingQty: spec.Qty,
		Seq:          b.seq(),
		Status:       Active,
		ExpiresAt:    spec.ExpiresAt,
		SubmittedAt:  time.Now(),
	}
	if spec.Type == Limit || spec.Type == StopLimit {
		o.Price = MustPrice(spec.Price)
	}
	if spec.Type == Stop || spec.Type == StopLimit {
		o.StopPrice = MustPrice(spec.StopPrice)
	}
	b.index[o.ID] = o
	return o
}

func (b *OrderBook) seq() uint64 {
	b.nextSeq++
	return b.nextSeq
}

// retire moves an order out of the live index once its status is
// terminal, retaining it for audit lookups.
func (b *OrderBook) retire(o *Order) {
	delete(b.index, o.ID)
	b.retired[o.ID] = o
	switch o.Status {
	case Cancelled:
		b.stats.OrdersCancelled++
	case Expired:
		b.stats.OrdersExpired++
	case Rejected:
		b.stats.OrdersRejected++
	}
}

// detach removes a live order from wherever it rests: the stop trigger
// index for parked stops, its price level otherwise.
func (b *OrderBook) detach(o *Order) {
	if o.Type == Stop || o.Type == StopLimit {
		tree := b.buyStops
		if o.Side == Sell {
			tree = b.sellStops
		}
		if level, ok := tree.GetMut(&priceLevel{price: o.StopPrice}); ok {
			if level.remove(o.ID) && level.empty() {
				tree.Delete(level)
			}
		}
		return
	}
	side := b.bids
	if o.Side == Sell {
		side = b.asks
	}
	if level, ok := side.GetMut(&priceLevel{price: o.Price}); ok {
		if level.remove(o.ID) && level.empty() {
			side.Delete(level)
		}
	}
}

// levelOf returns the level a live order currently rests on, or nil for
// parked stops resolved against the stop index.
func (b *OrderBook) levelOf(o *Order) *priceLevel {
	var tree *levels
	var key Price
	switch {
	case o.Type == Stop || o.Type == StopLimit:
		tree, key = b.buyStops, o.StopPrice
		if o.Side == Sell {
			tree = b.sellStops
		}
	case o.Side == Buy:
		tree, key = b.bids, o.Price
	default:
		tree, key = b.asks, o.Price
	}
	if level, ok := tree.GetMut(&priceLevel{price: key}); ok {
		return level
	}
	return nil
}

// resizeOrder applies a new remaining quantity, keeping the filled
// volume consistent.
func resizeOrder(o *Order, newRemaining uint64) {
	filled := o.FilledQty()
	o.RemainingQty = newRemaining
	o.OriginalQty = filled + newRemaining
}

// trackExpiry inserts a resting GTD order into the expiry list in
// expiry-ascending order.
func (b *OrderBook) trackExpiry(o *Order) {
	idx := sort.Search(len(b.gtd), func(i int) bool {
		return b.gtd[i].ExpiresAt.After(o.ExpiresAt)
	})
	b.gtd = append(b.gtd, nil)
	copy(b.gtd[idx+1:], b.gtd[idx:])
	b.gtd[idx] = o
}
