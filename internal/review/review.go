package review

import (
	"path/filepath"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/label"
	"github.com/mvellank/candlemark/internal/marketdata"
)

// ClosedTrades rebuilds the trade ledger from the label folders with the
// same event replay the labeling session uses, then keeps only the trades
// with an exit. An unmatched trailing entry is an open trade and is
// excluded from review.
func ClosedTrades(processedDir string, table *marketdata.Table) ([]label.Trade, error) {
	events, err := label.ScanEvents(processedDir)
	if err != nil {
		return nil, err
	}
	ledger, err := label.Replay(events, table)
	if err != nil {
		return nil, err
	}
	return ledger.ClosedTrades(), nil
}

// EntryFramePath returns the categorized file backing a trade's entry.
func EntryFramePath(processedDir string, t label.Trade) string {
	category := dataset.CategoryBuy
	if t.Side == label.SideSell {
		category = dataset.CategorySell
	}
	return filepath.Join(processedDir, category, dataset.FrameName(t.EntryIndex))
}

// ExitFramePath returns the categorized file backing a trade's exit.
func ExitFramePath(processedDir string, t label.Trade) string {
	category := dataset.CategoryBuyExit
	if t.Side == label.SideSell {
		category = dataset.CategorySellExit
	}
	return filepath.Join(processedDir, category, dataset.FrameName(t.ExitIndex))
}

// Navigator is a bounded cursor over the ordered closed-trade list.
type Navigator struct {
	trades []label.Trade
	index  int
}

// NewNavigator positions the cursor on the first trade, if any.
func NewNavigator(trades []label.Trade) *Navigator {
	return &Navigator{trades: trades}
}

// Empty reports whether there are no closed trades to review.
func (n *Navigator) Empty() bool {
	return len(n.trades) == 0
}

// Len returns the number of closed trades.
func (n *Navigator) Len() int {
	return len(n.trades)
}

// Index returns the 0-based cursor position.
func (n *Navigator) Index() int {
	return n.index
}

// Current returns the trade under the cursor.
func (n *Navigator) Current() (label.Trade, bool) {
	if n.Empty() {
		return label.Trade{}, false
	}
	return n.trades[n.index], true
}

// HasPrev reports whether backward navigation is possible.
func (n *Navigator) HasPrev() bool {
	return n.index > 0
}

// HasNext reports whether forward navigation is possible.
func (n *Navigator) HasNext() bool {
	return n.index < len(n.trades)-1
}

// Prev moves the cursor back, reporting whether it moved.
func (n *Navigator) Prev() bool {
	if !n.HasPrev() {
		return false
	}
	n.index--
	return true
}

// Next moves the cursor forward, reporting whether it moved.
func (n *Navigator) Next() bool {
	if !n.HasNext() {
		return false
	}
	n.index++
	return true
}
