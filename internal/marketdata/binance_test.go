package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mvellank/candlemark/internal/dataset"
)

const minuteMs = int64(60_000)

// klineServer serves a synthetic 1m kline grid the way the real endpoint
// does: rows clamped to [startTime, endTime) and capped at limit, with
// prices as strings and times as numbers.
func klineServer(t *testing.T, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requests++
		startMs, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		endMs, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var rows []string
		openMs := (startMs / minuteMs) * minuteMs
		for len(rows) < limit && openMs < endMs {
			price := fmt.Sprintf("%d.5", 100+(openMs/minuteMs)%50)
			rows = append(rows, fmt.Sprintf(`[%d,"%s","%s","%s","%s","12.0",%d]`,
				openMs, price, price, price, price, openMs+minuteMs-1))
			openMs += minuteMs
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "["+strings.Join(rows, ",")+"]")
	}))
}

func binanceKey(interval, timeRange string) dataset.Key {
	return dataset.Key{Ticker: "BTCUSDT", Interval: interval, TimeRange: timeRange, Source: dataset.SourceBinance}
}

func TestBinanceFetchPaginates(t *testing.T) {
	requests := 0
	srv := klineServer(t, &requests)
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, 0, 0, 0)
	p.PageLimit = 7

	candles, err := p.Fetch(context.Background(), binanceKey("1m", "1 hour"))
	if err != nil {
		t.Fatal(err)
	}
	if requests < 2 {
		t.Fatalf("expected multiple pages, got %d request(s)", requests)
	}
	if len(candles) < 59 || len(candles) > 61 {
		t.Fatalf("got %d candles for a 1-hour 1m range", len(candles))
	}

	// Strictly ascending open times proves the boundary rows the cursor
	// re-fetches were de-duplicated.
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime.Time) {
			t.Fatalf("open times not strictly ascending at %d: %s then %s",
				i, candles[i-1].OpenTime.Time, candles[i].OpenTime.Time)
		}
	}
}

func TestBinanceFetchRetriesServerErrors(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "maintenance", http.StatusInternalServerError)
			return
		}
		now := time.Now().UTC().Add(-time.Minute).UnixMilli()
		openMs := (now / minuteMs) * minuteMs
		fmt.Fprintf(w, `[[%d,"100","101","99","100","5.0",%d]]`, openMs, openMs+minuteMs-1)
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, 1000, 3, 0)
	candles, err := p.Fetch(context.Background(), binanceKey("1m", "5 minutes"))
	if err != nil {
		t.Fatal(err)
	}
	if requests != 2 {
		t.Fatalf("expected one retry, got %d requests", requests)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles", len(candles))
	}
}

func TestBinanceFetchClientErrorIsPermanent(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, 1000, 3, 0)
	_, err := p.Fetch(context.Background(), binanceKey("1m", "5 minutes"))
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if requests != 1 {
		t.Fatalf("client error must not be retried, got %d requests", requests)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
}

func TestBinanceFetchEmptyRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, 1000, 0, 0)
	_, err := p.Fetch(context.Background(), binanceKey("1m", "5 minutes"))
	if !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("expected ErrEmptyRange, got %v", err)
	}
}

func TestBinanceFetchRejectsUnknownInterval(t *testing.T) {
	requests := 0
	srv := klineServer(t, &requests)
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, 1000, 0, 0)
	_, err := p.Fetch(context.Background(), binanceKey("7m", "5 minutes"))
	if !errors.Is(err, ErrUnsupportedInterval) {
		t.Fatalf("expected ErrUnsupportedInterval, got %v", err)
	}
	if requests != 0 {
		t.Fatalf("interval validation must happen before any request")
	}
}

func TestDecodeKlineRowsRejectsShortRows(t *testing.T) {
	_, err := decodeKlineRows(strings.NewReader(`[[1,"2","3"]]`))
	if err == nil {
		t.Fatal("expected error for short kline row")
	}
}
