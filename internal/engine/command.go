package engine

import "kestrel/internal/book"

type CommandType uint8

const (
	CmdSubmit CommandType = iota
	CmdCancel
	CmdModify
)

func (t CommandType) String() string {
	switch t {
	case CmdSubmit:
		return "submit"
	case CmdCancel:
		return "cancel"
	case CmdModify:
		return "modify"
	}
	return "unknown"
}

// Command is one unit of work on the ingress queue. Producers enqueue
// concurrently; the sequencer applies commands strictly in the order
// their enqueue completed.
type Command struct {
	Type          CommandType
	CorrelationID string // assigned at enqueue, echoed on the result

	Spec book.OrderSpec // submit

	OrderID  uint64   // cancel, modify
	NewPrice *float64 // modify, nil leaves price unchanged
	NewQty   *uint64  // modify, nil leaves quantity unchanged

	resp chan Result
}

// Result resolves a command's acknowledgement future once the sequencer
// has applied it.
type Result struct {
	CorrelationID string
	OrderID       uint64
	Status        book.OrderStatus
	Trades        []book.Trade
	Err           error
}
