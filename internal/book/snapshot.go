package book

import "time"

// Stats carries the book's running counters, published with every
// snapshot.
type Stats struct {
	OrdersAccepted  uint64
	OrdersRejected  uint64
	OrdersCancelled uint64
	OrdersExpired   uint64
	TradesMatched   uint64
	VolumeTraded    uint64
	LastTradeAt     time.Time
}

// LevelSummary is one aggregated price level of a snapshot side.
type LevelSummary struct {
	Price  Price
	Qty    uint64
	Orders int
}

// Snapshot is an immutable view of book state coherent with an integral
// number of applied commands. Bids are ordered best (highest) first,
// asks best (lowest) first, truncated to the requested depth.
type Snapshot struct {
	Instrument   string
	Applied      uint64 // commands applied when the snapshot was taken
	Bids         []LevelSummary
	Asks         []LevelSummary
	LastTrade    Price
	HasLastTrade bool
	Stats        Stats
	TakenAt      time.Time
}

// BestBid returns the snapshot's best bid.
func (s *Snapshot) BestBid() (Price, bool) {
	if len(s.Bids) == 0 {
		return Price{}, false
	}
	return s.Bids[0].Price, true
}

// BestAsk returns the snapshot's best ask.
func (s *Snapshot) BestAsk() (Price, bool) {
	if len(s.Asks) == 0 {
		return Price{}, false
	}
	return s.Asks[0].Price, true
}

// Spread returns best ask minus best bid when both sides have depth.
func (s *Snapshot) Spread() (float64, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	f, _ := ask.Sub(bid).Float64()
	return f, true
}

// Mid returns the midpoint of best bid and best ask.
func (s *Snapshot) Mid() (float64, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return bid.Mid(ask), true
}

// Depth captures up to n aggregated levels per side along with the
// book's stats. The result shares nothing with book internals.
func (b *OrderBook) Depth(n int) *Snapshot {
	snap := &Snapshot{
		LastTrade:    b.lastTrade,
		HasLastTrade: b.hasLast,
		Stats:        b.stats,
		TakenAt:      time.Now(),
	}
	snap.Bids = collectLevels(b.bids, n)
	snap.Asks = collectLevels(b.asks, n)
	return snap
}

func collectLevels(tree *levels, n int) []LevelSummary {
	if n <= 0 {
		return nil
	}
	out := make([]LevelSummary, 0, n)
	tree.Scan(func(l *priceLevel) bool {
		out = append(out, LevelSummary{
			Price:  l.price,
			Qty:    l.aggregateQty,
			Orders: len(l.orders),
		})
		return len(out) < n
	})
	return out
}
