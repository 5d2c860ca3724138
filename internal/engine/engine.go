package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"kestrel/internal/config"
)

var (
	ErrQueueFull         = errors.New("ingress queue full")
	ErrEngineClosed      = errors.New("engine closed")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Engine runs one sequencer per configured instrument. Instruments are
// fully independent: each has its own book, ingress queue and goroutine,
// so matching parallelizes across instruments while staying strictly
// sequential within one.
type Engine struct {
	log  zerolog.Logger
	t    *tomb.Tomb
	seqs map[string]*Sequencer
}

func New(cfg *config.Config, log zerolog.Logger) *Engine {
	t, _ := tomb.WithContext(context.Background())
	e := &Engine{
		log:  log,
		t:    t,
		seqs: make(map[string]*Sequencer, len(cfg.Engine.Instruments)),
	}
	for _, sym := range cfg.Engine.Instruments {
		e.seqs[sym] = newSequencer(sym, cfg.Engine, t, log)
	}
	return e
}

// Start launches the sequencer goroutines.
func (e *Engine) Start() {
	for _, s := range e.seqs {
		e.t.Go(s.run)
	}
	e.log.Info().Int("instruments", len(e.seqs)).Msg("engine started")
}

// Instrument returns the sequencer for a symbol.
func (e *Engine) Instrument(symbol string) (*Sequencer, error) {
	s, ok := e.seqs[symbol]
	if !ok {
		return nil, ErrUnknownInstrument
	}
	return s, nil
}

// Instruments lists the configured symbols.
func (e *Engine) Instruments() []string {
	out := make([]string, 0, len(e.seqs))
	for sym := range e.seqs {
		out = append(out, sym)
	}
	return out
}

// Close stops accepting commands, lets each sequencer drain its queued
// work, and waits for all of them to finish.
func (e *Engine) Close() error {
	e.t.Kill(nil)
	err := e.t.Wait()
	e.log.Info().Msg("engine stopped")
	return err
}
