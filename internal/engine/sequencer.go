package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"kestrel/internal/book"
	"kestrel/internal/config"
)

// Sequencer is the single logical writer for one instrument's book. It
// drains the ingress queue one command at a time, applies each to the
// book, and publishes the resulting trades and a coherent snapshot.
// Producers only ever touch the ingress channel; readers only ever touch
// published snapshots and trade feeds.
type Sequencer struct {
	instrument string
	book       *book.OrderBook
	ingress    chan Command
	t          *tomb.Tomb
	log        zerolog.Logger

	depth      int
	sweepEvery time.Duration

	applied  uint64
	snapshot atomic.Pointer[book.Snapshot]

	// closed gates the ingress channel during shutdown. Producers hold
	// the read lock across their send, so once the loop flips closed
	// under the write lock and drains, no command can be stranded on the
	// queue with an unresolved ack.
	closeMu sync.RWMutex
	closed  bool

	subMu      sync.Mutex
	subs       []chan book.Trade
	feedBuffer int
}

func newSequencer(instrument string, cfg config.EngineConfig, t *tomb.Tomb, log zerolog.Logger) *Sequencer {
	s := &Sequencer{
		instrument: instrument,
		book:       book.NewOrderBook(),
		ingress:    make(chan Command, cfg.IngressBuffer),
		t:          t,
		log:        log.With().Str("instrument", instrument).Logger(),
		depth:      cfg.SnapshotDepth,
		sweepEvery: cfg.ExpirySweep(),
		feedBuffer: cfg.TradeFeedBuffer,
	}
	// Publish an empty snapshot so readers never observe nil.
	s.storeSnapshot()
	return s
}

// Submit enqueues a submit command. The returned channel resolves with
// the trades and final order status once the sequencer applies it.
// Enqueue never blocks on matching: a full queue fails with
// ErrQueueFull, a closed engine with ErrEngineClosed.
func (s *Sequencer) Submit(spec book.OrderSpec) (<-chan Result, error) {
	return s.enqueue(Command{Type: CmdSubmit, Spec: spec})
}

// Cancel enqueues a cancel command for the given order ID.
func (s *Sequencer) Cancel(orderID uint64) (<-chan Result, error) {
	return s.enqueue(Command{Type: CmdCancel, OrderID: orderID})
}

// Modify enqueues a modify command. Nil price or quantity leave that
// field unchanged.
func (s *Sequencer) Modify(orderID uint64, newPrice *float64, newQty *uint64) (<-chan Result, error) {
	return s.enqueue(Command{Type: CmdModify, OrderID: orderID, NewPrice: newPrice, NewQty: newQty})
}

// Snapshot returns the most recently published book state. The snapshot
// is immutable and reflects the book after an integral number of applied
// commands.
func (s *Sequencer) Snapshot() *book.Snapshot {
	return s.snapshot.Load()
}

// TradeFeed registers a new trade subscriber. The feed is append-only in
// trade-ID order. A subscriber that stops draining loses trades once its
// buffer fills; the sequencer never blocks on a slow reader.
func (s *Sequencer) TradeFeed() <-chan book.Trade {
	ch := make(chan book.Trade, s.feedBuffer)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

// Wait resolves an acknowledgement future, honouring ctx cancellation.
func Wait(ctx context.Context, ack <-chan Result) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ack:
		return res, nil
	}
}

func (s *Sequencer) enqueue(cmd Command) (<-chan Result, error) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return nil, ErrEngineClosed
	}
	select {
	case <-s.t.Dying():
		return nil, ErrEngineClosed
	default:
	}

	cmd.CorrelationID = uuid.NewString()
	cmd.resp = make(chan Result, 1)

	select {
	case s.ingress <- cmd:
		return cmd.resp, nil
	default:
		return nil, ErrQueueFull
	}
}

// run is the sequencer loop. It must be the only goroutine that touches
// the book.
func (s *Sequencer) run() error {
	s.log.Info().Msg("sequencer running")

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.t.Dying():
			// Stop producers first: once closed is set, every accepted
			// command is already on the queue and drain resolves it.
			s.closeMu.Lock()
			s.closed = true
			s.closeMu.Unlock()
			s.drain()
			return nil
		case cmd := <-s.ingress:
			s.apply(cmd)
		case now := <-ticker.C:
			s.sweepExpired(now)
		}
	}
}

// drain applies commands already accepted onto the queue before
// shutdown so their acknowledgements resolve.
func (s *Sequencer) drain() {
	for {
		select {
		case cmd := <-s.ingress:
			s.apply(cmd)
		default:
			s.log.Info().Uint64("applied", s.applied).Msg("sequencer drained")
			return
		}
	}
}

func (s *Sequencer) apply(cmd Command) {
	res := Result{CorrelationID: cmd.CorrelationID}

	switch cmd.Type {
	case CmdSubmit:
		id, trades, err := s.book.Submit(cmd.Spec)
		res.OrderID = id
		res.Trades = trades
		res.Err = err
	case CmdCancel:
		res.OrderID = cmd.OrderID
		if !s.book.Cancel(cmd.OrderID) {
			res.Err = book.ErrOrderNotFound
		}
	case CmdModify:
		res.OrderID = cmd.OrderID
		trades, err := s.book.Modify(cmd.OrderID, cmd.NewPrice, cmd.NewQty)
		res.Trades = trades
		res.Err = err
	}

	if o, ok := s.book.Order(res.OrderID); ok {
		res.Status = o.Status
	} else if res.Err != nil {
		res.Status = book.Rejected
	}

	s.applied++
	s.publish(res.Trades)

	if res.Err != nil {
		s.log.Debug().
			Str("cmd", cmd.Type.String()).
			Uint64("order_id", res.OrderID).
			Err(res.Err).
			Msg("command rejected")
	} else if len(res.Trades) > 0 {
		s.log.Info().
			Str("cmd", cmd.Type.String()).
			Uint64("order_id", res.OrderID).
			Int("trades", len(res.Trades)).
			Msg("command matched")
	}

	// resp is buffered, the send cannot block the loop.
	if cmd.resp != nil {
		cmd.resp <- res
	}
}

func (s *Sequencer) sweepExpired(now time.Time) {
	expired := s.book.ExpireDue(now)
	if len(expired) == 0 {
		return
	}
	s.applied++
	s.publish(nil)
	s.log.Info().Int("expired", len(expired)).Msg("gtd orders expired")
}

// publish stores a fresh snapshot and fans trades out to subscribers.
func (s *Sequencer) publish(trades []book.Trade) {
	s.storeSnapshot()

	if len(trades) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, tr := range trades {
		for _, ch := range s.subs {
			select {
			case ch <- tr:
			default:
				s.log.Warn().Uint64("trade_id", tr.TradeID).Msg("trade feed full, dropping")
			}
		}
	}
}

func (s *Sequencer) storeSnapshot() {
	snap := s.book.Depth(s.depth)
	snap.Instrument = s.instrument
	snap.Applied = s.applied
	s.snapshot.Store(snap)
}
