package chart

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/marketdata"
)

func chartTable(n int) *marketdata.Table {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]marketdata.Candle, n)
	for i := range candles {
		open := start.Add(time.Duration(i) * time.Hour)
		// Alternate up and down candles so both colors get exercised.
		base := decimal.NewFromInt(int64(1000 + (i%7)*3))
		var closeP decimal.Decimal
		if i%2 == 0 {
			closeP = base.Add(decimal.NewFromInt(2))
		} else {
			closeP = base.Sub(decimal.NewFromInt(2))
		}
		candles[i] = marketdata.Candle{
			OpenTime:  marketdata.Timestamp{Time: open},
			Open:      base,
			High:      base.Add(decimal.NewFromInt(4)),
			Low:       base.Sub(decimal.NewFromInt(4)),
			Close:     closeP,
			Volume:    decimal.NewFromInt(int64(i + 1)),
			CloseTime: marketdata.Timestamp{Time: open.Add(time.Hour)},
		}
	}
	return &marketdata.Table{
		Key:     dataset.Key{Ticker: "ETHUSDT", Interval: "1h", TimeRange: "1 month", Source: dataset.SourceBinance},
		Candles: candles,
	}
}

func frameNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestRenderAllFrameNaming(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	r := NewRenderer(3, 4, 64, 48)

	written, err := r.RenderAll(chartTable(10), dir)
	if err != nil {
		t.Fatal(err)
	}
	if written != 7 {
		t.Fatalf("written = %d, want 7", written)
	}

	names := frameNames(t, dir)
	want := []string{
		"candle_00004.png", "candle_00005.png", "candle_00006.png",
		"candle_00007.png", "candle_00008.png", "candle_00009.png",
		"candle_00010.png",
	}
	if len(names) != len(want) {
		t.Fatalf("frames = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("frame %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRenderAllDefaultSkipNaming(t *testing.T) {
	// With the default skip the first labelable candle is index 480, which
	// must come out as candle_00481.png.
	dir := filepath.Join(t.TempDir(), "shots")
	r := NewRenderer(480, 96, 64, 48)

	written, err := r.RenderAll(chartTable(482), dir)
	if err != nil {
		t.Fatal(err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2", written)
	}
	names := frameNames(t, dir)
	if names[0] != "candle_00481.png" || names[1] != "candle_00482.png" {
		t.Fatalf("frames = %v", names)
	}
}

func TestRenderAllNoopWhenTooShort(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	r := NewRenderer(480, 96, 64, 48)

	written, err := r.RenderAll(chartTable(480), dir)
	if err != nil {
		t.Fatal(err)
	}
	if written != 0 {
		t.Fatalf("written = %d, want 0", written)
	}
	if names := frameNames(t, dir); len(names) != 0 {
		t.Fatalf("expected empty folder, got %v", names)
	}
}

func TestRenderAllRecreatesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	// A frame from an earlier, wider skip must not survive the re-render.
	stale := filepath.Join(dir, "candle_00001.png")
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRenderer(3, 4, 64, 48)
	if _, err := r.RenderAll(chartTable(10), dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale frame survived the folder recreation")
	}
}

func TestRenderAllDeterministicFileSet(t *testing.T) {
	table := chartTable(12)
	r := NewRenderer(5, 4, 64, 48)

	dirA := filepath.Join(t.TempDir(), "a")
	dirB := filepath.Join(t.TempDir(), "b")
	if _, err := r.RenderAll(table, dirA); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RenderAll(table, dirB); err != nil {
		t.Fatal(err)
	}

	a, b := frameNames(t, dirA), frameNames(t, dirB)
	if len(a) != len(b) {
		t.Fatalf("file sets differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("file sets differ at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestRenderFrameFlatWindow(t *testing.T) {
	// Quote-derived candles can be perfectly flat; rendering must still
	// produce a file instead of dividing by a zero price range.
	flat := decimal.NewFromInt(100)
	candles := make([]marketdata.Candle, 4)
	for i := range candles {
		candles[i] = marketdata.Candle{Open: flat, High: flat, Low: flat, Close: flat, Volume: decimal.Zero}
	}

	r := NewRenderer(0, 4, 64, 48)
	out := filepath.Join(t.TempDir(), "flat.png")
	if err := r.renderFrame(candles, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}
