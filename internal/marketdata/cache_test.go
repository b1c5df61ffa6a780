package marketdata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvellank/candlemark/internal/dataset"
)

type countingProvider struct {
	calls   int
	candles []Candle
}

func (p *countingProvider) Fetch(ctx context.Context, key dataset.Key) ([]Candle, error) {
	p.calls++
	return p.candles, nil
}

func cacheCandles(n int) []Candle {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = Candle{
			OpenTime:  Timestamp{open},
			Open:      decimal.RequireFromString("101.25"),
			High:      decimal.RequireFromString("103.50"),
			Low:       decimal.RequireFromString("99.75"),
			Close:     decimal.NewFromInt(int64(100 + i)),
			Volume:    decimal.RequireFromString("12.345"),
			CloseTime: Timestamp{open.Add(time.Hour - time.Second)},
		}
	}
	return out
}

func TestEnsureFetchesOnceThenUsesCache(t *testing.T) {
	key := dataset.Key{Ticker: "BTCUSDT", Interval: "1h", TimeRange: "1 month", Source: dataset.SourceBinance}
	path := filepath.Join(t.TempDir(), "data", key.CSVName())
	provider := &countingProvider{candles: cacheCandles(5)}

	first, err := Ensure(context.Background(), provider, path, key, false)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Fatalf("calls = %d after first Ensure", provider.calls)
	}
	if first.Len() != 5 {
		t.Fatalf("first.Len() = %d", first.Len())
	}

	second, err := Ensure(context.Background(), provider, path, key, false)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Fatalf("calls = %d after cached Ensure, want 1", provider.calls)
	}
	if second.Len() != first.Len() {
		t.Fatalf("cached table has %d candles, fetched had %d", second.Len(), first.Len())
	}

	// The CSV round trip must preserve prices and times exactly.
	for i := 0; i < first.Len(); i++ {
		a, _ := first.Candle(i)
		b, _ := second.Candle(i)
		if !a.Close.Equal(b.Close) || !a.Volume.Equal(b.Volume) {
			t.Fatalf("candle %d changed through the cache: %+v vs %+v", i, a, b)
		}
		if !a.OpenTime.Equal(b.OpenTime.Time) {
			t.Fatalf("candle %d open time changed: %s vs %s", i, a.OpenTime.Time, b.OpenTime.Time)
		}
	}
}

func TestEnsureRefreshForcesFetch(t *testing.T) {
	key := dataset.Key{Ticker: "BTCUSDT", Interval: "1h", TimeRange: "1 month", Source: dataset.SourceBinance}
	path := filepath.Join(t.TempDir(), key.CSVName())
	provider := &countingProvider{candles: cacheCandles(3)}

	if _, err := Ensure(context.Background(), provider, path, key, false); err != nil {
		t.Fatal(err)
	}
	if _, err := Ensure(context.Background(), provider, path, key, true); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 2 {
		t.Fatalf("calls = %d, want 2 (refresh must bypass the cache)", provider.calls)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	key := dataset.Key{Ticker: "BTCUSDT", Interval: "1h", TimeRange: "1 month", Source: dataset.SourceBinance}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv"), key); err == nil {
		t.Fatal("expected error for missing cache file")
	}
}
