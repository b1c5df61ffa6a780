package label

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/marketdata"
)

func testTable(n int) *marketdata.Table {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]marketdata.Candle, n)
	for i := range candles {
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		price := decimal.NewFromInt(int64(100 + i))
		candles[i] = marketdata.Candle{
			OpenTime:  marketdata.Timestamp{Time: open},
			Open:      price,
			High:      price.Add(decimal.NewFromInt(2)),
			Low:       price.Sub(decimal.NewFromInt(2)),
			Close:     price,
			Volume:    decimal.NewFromInt(10),
			CloseTime: marketdata.Timestamp{Time: open.Add(15 * time.Minute)},
		}
	}
	return &marketdata.Table{
		Key:     dataset.Key{Ticker: "BTCUSDT", Interval: "15m", TimeRange: "1 month", Source: dataset.SourceBinance},
		Candles: candles,
	}
}

func makePool(t *testing.T, dir string, indices []int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, idx := range indices {
		path := filepath.Join(dir, dataset.FrameName(idx))
		require.NoError(t, os.WriteFile(path, []byte("fake png "+dataset.FrameName(idx)), 0644))
	}
}

func labelFileSet(t *testing.T, processedDir string) map[string]struct{} {
	t.Helper()
	set := make(map[string]struct{})
	for _, category := range dataset.Categories() {
		entries, err := os.ReadDir(filepath.Join(processedDir, category))
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		for _, entry := range entries {
			set[category+"/"+entry.Name()] = struct{}{}
		}
	}
	return set
}

func newTestSession(t *testing.T, table *marketdata.Table, indices []int, restart bool) (*Session, string, string) {
	t.Helper()
	root := t.TempDir()
	shots := filepath.Join(root, "screenshots")
	processed := filepath.Join(root, "processed")
	makePool(t, shots, indices)
	session, err := NewSession(table, shots, processed, restart)
	require.NoError(t, err)
	return session, shots, processed
}

func TestSessionLiveFlow(t *testing.T) {
	table := testTable(20)
	session, _, processed := newTestSession(t, table, []int{5, 6, 7, 8, 9}, false)

	idx, ok := session.CurrentIndex()
	require.True(t, ok)
	require.Equal(t, 5, idx)

	require.NoError(t, session.Do(ActionBuyEntry))
	require.FileExists(t, filepath.Join(processed, dataset.CategoryBuy, "candle_00006.png"))
	require.Equal(t, PositionLong, session.Ledger().Position())

	require.NoError(t, session.Do(ActionNeutral))
	require.NoError(t, session.Do(ActionBuyExit))
	require.Equal(t, PositionFlat, session.Ledger().Position())

	trades := session.Ledger().Trades()
	require.Len(t, trades, 1)
	require.Equal(t, 5, trades[0].EntryIndex)
	require.Equal(t, 7, trades[0].ExitIndex)
	require.True(t, trades[0].EntryPrice.Equal(decimal.NewFromInt(105)))
	require.True(t, trades[0].ExitPrice.Equal(decimal.NewFromInt(107)))

	idx, _ = session.CurrentIndex()
	require.Equal(t, 8, idx)
}

func TestSessionUndoInverse(t *testing.T) {
	table := testTable(20)

	preludes := map[string][]Action{
		"buy entry":  nil,
		"sell entry": nil,
		"neutral":    nil,
		"buy exit":   {ActionBuyEntry},
		"sell exit":  {ActionSellEntry},
	}
	actions := map[string]Action{
		"buy entry":  ActionBuyEntry,
		"sell entry": ActionSellEntry,
		"neutral":    ActionNeutral,
		"buy exit":   ActionBuyExit,
		"sell exit":  ActionSellExit,
	}

	for name, action := range actions {
		t.Run(name, func(t *testing.T) {
			session, _, processed := newTestSession(t, table, []int{5, 6, 7, 8}, false)
			for _, a := range preludes[name] {
				require.NoError(t, session.Do(a))
			}

			beforePos := session.Ledger().Position()
			beforeTrades := append([]Trade(nil), session.Ledger().Trades()...)
			beforeFiles := labelFileSet(t, processed)
			beforeIdx, _ := session.CurrentIndex()

			require.NoError(t, session.Do(action))
			ev, undone, err := session.Undo()
			require.NoError(t, err)
			require.True(t, undone)
			require.Equal(t, action, ev.Action)

			require.Equal(t, beforePos, session.Ledger().Position())
			require.Equal(t, beforeTrades, session.Ledger().Trades())
			require.Equal(t, beforeFiles, labelFileSet(t, processed))
			afterIdx, _ := session.CurrentIndex()
			require.Equal(t, beforeIdx, afterIdx)
		})
	}
}

func TestUndoOnEmptyHistoryIsNoop(t *testing.T) {
	table := testTable(20)
	session, _, _ := newTestSession(t, table, []int{5, 6}, false)

	_, undone, err := session.Undo()
	require.NoError(t, err)
	require.False(t, undone)
	idx, _ := session.CurrentIndex()
	require.Equal(t, 5, idx)
}

func TestResumeEquivalence(t *testing.T) {
	table := testTable(20)
	session, shots, processed := newTestSession(t, table, []int{5, 6, 7, 8, 9, 10}, false)

	for _, a := range []Action{ActionBuyEntry, ActionNeutral, ActionBuyExit, ActionSellEntry} {
		require.NoError(t, session.Do(a))
	}

	resumed, err := NewSession(table, shots, processed, false)
	require.NoError(t, err)

	require.Equal(t, session.Ledger().Position(), resumed.Ledger().Position())
	require.Equal(t, session.Ledger().Trades(), resumed.Ledger().Trades())
	require.Equal(t, session.Ledger().Events(), resumed.Ledger().Events())

	liveIdx, liveOK := session.CurrentIndex()
	resumedIdx, resumedOK := resumed.CurrentIndex()
	require.Equal(t, liveOK, resumedOK)
	require.Equal(t, liveIdx, resumedIdx)

	// Undo in the resumed session behaves like undo in the live one: the
	// open sell entry comes back off the books.
	ev, undone, err := resumed.Undo()
	require.NoError(t, err)
	require.True(t, undone)
	require.Equal(t, ActionSellEntry, ev.Action)
	require.Equal(t, PositionFlat, resumed.Ledger().Position())
	require.NoFileExists(t, filepath.Join(processed, dataset.CategorySell, dataset.FrameName(8)))
	idx, _ := resumed.CurrentIndex()
	require.Equal(t, 8, idx)
}

func TestResumeRejectsDuplicateIndex(t *testing.T) {
	table := testTable(20)
	_, shots, processed := newTestSession(t, table, []int{5, 6, 7}, false)

	// The same frame filed under two folders is corruption, not a
	// precedence question.
	for _, category := range []string{dataset.CategoryBuy, dataset.CategoryNormal} {
		path := filepath.Join(processed, category, dataset.FrameName(5))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	_, err := NewSession(table, shots, processed, false)
	var ambErr *AmbiguityError
	require.ErrorAs(t, err, &ambErr)
	require.Equal(t, 5, ambErr.Index)
}

func TestResumeRejectsSecondOpenEntry(t *testing.T) {
	table := testTable(20)
	_, shots, processed := newTestSession(t, table, []int{5, 6, 7, 8}, false)

	require.NoError(t, os.WriteFile(filepath.Join(processed, dataset.CategoryBuy, dataset.FrameName(5)), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(processed, dataset.CategorySell, dataset.FrameName(7)), []byte("x"), 0644))

	_, err := NewSession(table, shots, processed, false)
	var ambErr *AmbiguityError
	require.ErrorAs(t, err, &ambErr)
}

func TestRestartClearsLabels(t *testing.T) {
	table := testTable(20)
	session, shots, processed := newTestSession(t, table, []int{5, 6, 7}, false)

	require.NoError(t, session.Do(ActionBuyEntry))
	require.NoError(t, session.Do(ActionNeutral))

	restarted, err := NewSession(table, shots, processed, true)
	require.NoError(t, err)
	require.Empty(t, restarted.Ledger().Events())
	require.Empty(t, labelFileSet(t, processed))
	idx, _ := restarted.CurrentIndex()
	require.Equal(t, 5, idx)
}

func TestFailedCopyLeavesStateUntouched(t *testing.T) {
	table := testTable(20)
	session, _, processed := newTestSession(t, table, []int{5, 6}, false)

	// Break the destination folder so the copy fails mid-action.
	require.NoError(t, os.RemoveAll(filepath.Join(processed, dataset.CategoryNormal)))

	err := session.Do(ActionNeutral)
	require.Error(t, err)
	require.Equal(t, PositionFlat, session.Ledger().Position())
	require.Empty(t, session.Ledger().Events())
	idx, _ := session.CurrentIndex()
	require.Equal(t, 5, idx)
}

func TestMissingSourceFrameIsFatal(t *testing.T) {
	table := testTable(20)
	session, shots, _ := newTestSession(t, table, []int{5, 6}, false)

	require.NoError(t, os.Remove(filepath.Join(shots, dataset.FrameName(5))))

	err := session.Do(ActionNeutral)
	require.Error(t, err)
	require.Empty(t, session.Ledger().Events())
}
