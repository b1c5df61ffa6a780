package label

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mvellank/candlemark/internal/dataset"
)

// Side is the direction of a trade.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// Position is the open-position state of a labeling session. The whole
// session holds at most one open position at any time.
type Position int

const (
	PositionFlat Position = iota
	PositionLong
	PositionShort
)

func (p Position) String() string {
	switch p {
	case PositionLong:
		return "long"
	case PositionShort:
		return "short"
	}
	return "flat"
}

// Action is one labeling decision for the current frame.
type Action int

const (
	ActionBuyEntry Action = iota
	ActionSellEntry
	ActionBuyExit
	ActionSellExit
	ActionNeutral
)

// Actions returns all actions in a fixed order.
func Actions() []Action {
	return []Action{ActionBuyEntry, ActionSellEntry, ActionBuyExit, ActionSellExit, ActionNeutral}
}

func (a Action) String() string {
	switch a {
	case ActionBuyEntry:
		return "buy entry"
	case ActionSellEntry:
		return "sell entry"
	case ActionBuyExit:
		return "buy exit"
	case ActionSellExit:
		return "sell exit"
	}
	return "neutral"
}

// Category returns the label folder an action files its frame into.
func (a Action) Category() string {
	switch a {
	case ActionBuyEntry:
		return dataset.CategoryBuy
	case ActionSellEntry:
		return dataset.CategorySell
	case ActionBuyExit:
		return dataset.CategoryBuyExit
	case ActionSellExit:
		return dataset.CategorySellExit
	}
	return dataset.CategoryNormal
}

// ActionForCategory is the inverse of Category, used when rebuilding
// history from folder contents.
func ActionForCategory(category string) (Action, bool) {
	switch category {
	case dataset.CategoryBuy:
		return ActionBuyEntry, true
	case dataset.CategorySell:
		return ActionSellEntry, true
	case dataset.CategoryBuyExit:
		return ActionBuyExit, true
	case dataset.CategorySellExit:
		return ActionSellExit, true
	case dataset.CategoryNormal:
		return ActionNeutral, true
	}
	return ActionNeutral, false
}

// Event is one applied labeling action: the durable history of a session
// is the ordered sequence of events, materialized on disk as folder
// membership of the frame files.
type Event struct {
	Action Action
	Index  int
}

// Trade is one directional trade derived from entry/exit events.
// ExitIndex is negative while the trade is open.
type Trade struct {
	Side       Side
	EntryIndex int
	EntryPrice decimal.Decimal
	ExitIndex  int
	ExitPrice  decimal.Decimal
}

// Closed reports whether the trade has an exit.
func (t Trade) Closed() bool {
	return t.ExitIndex >= 0
}

// PnL is exit-entry for BUY and entry-exit for SELL.
func (t Trade) PnL() decimal.Decimal {
	if t.Side == SideSell {
		return t.EntryPrice.Sub(t.ExitPrice)
	}
	return t.ExitPrice.Sub(t.EntryPrice)
}

// ErrInvalidTransition means the action is not allowed in the current
// position state. The UI disables such actions, so reaching this error
// normally means the folder history is inconsistent.
var ErrInvalidTransition = errors.New("action not allowed in current position")

// Ledger is the trade ledger plus the event log that produced it. It is
// pure state: all filesystem effects live in Session. Live labeling and
// resume-from-disk both drive the ledger through Apply, so the two paths
// cannot diverge.
type Ledger struct {
	position Position
	trades   []Trade
	events   []Event
}

// NewLedger returns an empty ledger in the flat position.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Position returns the current open-position state.
func (l *Ledger) Position() Position {
	return l.position
}

// Trades returns the ledger rows in entry order.
func (l *Ledger) Trades() []Trade {
	return l.trades
}

// Events returns the applied event log in order.
func (l *Ledger) Events() []Event {
	return l.events
}

// CanApply reports whether an action is allowed in the current position.
func (l *Ledger) CanApply(a Action) bool {
	switch a {
	case ActionNeutral:
		return true
	case ActionBuyEntry, ActionSellEntry:
		return l.position == PositionFlat
	case ActionBuyExit:
		return l.position == PositionLong
	case ActionSellExit:
		return l.position == PositionShort
	}
	return false
}

// Allowed returns the actions currently enabled.
func (l *Ledger) Allowed() []Action {
	var out []Action
	for _, a := range Actions() {
		if l.CanApply(a) {
			out = append(out, a)
		}
	}
	return out
}

// Apply executes one event against the ledger. price is the close price at
// the event's index and becomes the entry or exit price for trade events.
func (l *Ledger) Apply(ev Event, price decimal.Decimal) error {
	if !l.CanApply(ev.Action) {
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, ev.Action, l.position)
	}

	switch ev.Action {
	case ActionBuyEntry:
		l.trades = append(l.trades, Trade{Side: SideBuy, EntryIndex: ev.Index, EntryPrice: price, ExitIndex: -1, ExitPrice: decimal.Zero})
		l.position = PositionLong
	case ActionSellEntry:
		l.trades = append(l.trades, Trade{Side: SideSell, EntryIndex: ev.Index, EntryPrice: price, ExitIndex: -1, ExitPrice: decimal.Zero})
		l.position = PositionShort
	case ActionBuyExit, ActionSellExit:
		open := &l.trades[len(l.trades)-1]
		open.ExitIndex = ev.Index
		open.ExitPrice = price
		l.position = PositionFlat
	}

	l.events = append(l.events, ev)
	return nil
}

// LastEvent returns the most recent event without removing it.
func (l *Ledger) LastEvent() (Event, bool) {
	if len(l.events) == 0 {
		return Event{}, false
	}
	return l.events[len(l.events)-1], true
}

// Unapply pops the most recent event and inverts its ledger effect: an
// entry removes the trade row it created, an exit reopens its trade, a
// neutral changes nothing. Returns false on empty history.
func (l *Ledger) Unapply() (Event, bool) {
	if len(l.events) == 0 {
		return Event{}, false
	}
	ev := l.events[len(l.events)-1]
	l.events = l.events[:len(l.events)-1]
	if len(l.events) == 0 {
		l.events = nil
	}

	switch ev.Action {
	case ActionBuyEntry, ActionSellEntry:
		l.trades = l.trades[:len(l.trades)-1]
		if len(l.trades) == 0 {
			l.trades = nil
		}
		l.position = PositionFlat
	case ActionBuyExit:
		reopened := &l.trades[len(l.trades)-1]
		reopened.ExitIndex = -1
		reopened.ExitPrice = decimal.Zero
		l.position = PositionLong
	case ActionSellExit:
		reopened := &l.trades[len(l.trades)-1]
		reopened.ExitIndex = -1
		reopened.ExitPrice = decimal.Zero
		l.position = PositionShort
	}
	return ev, true
}

// OpenTrade returns the currently open trade, if any.
func (l *Ledger) OpenTrade() (Trade, bool) {
	if len(l.trades) == 0 {
		return Trade{}, false
	}
	last := l.trades[len(l.trades)-1]
	if last.Closed() {
		return Trade{}, false
	}
	return last, true
}

// ClosedTrades returns only the trades with an exit, in entry order.
func (l *Ledger) ClosedTrades() []Trade {
	var out []Trade
	for _, t := range l.trades {
		if t.Closed() {
			out = append(out, t)
		}
	}
	return out
}
