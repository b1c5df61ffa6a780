package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/mvellank/candlemark/internal/dataset"
)

// BinanceProvider downloads spot klines from the Binance REST API.
type BinanceProvider struct {
	BaseURL      string
	Client       *http.Client
	PageLimit    int
	MaxRetries   int
	RequestDelay time.Duration
}

// NewBinanceProvider returns a provider with the given pagination and retry
// settings.
func NewBinanceProvider(baseURL string, pageLimit, maxRetries int, requestDelay time.Duration) *BinanceProvider {
	return &BinanceProvider{
		BaseURL:      baseURL,
		Client:       &http.Client{Timeout: 30 * time.Second},
		PageLimit:    pageLimit,
		MaxRetries:   maxRetries,
		RequestDelay: requestDelay,
	}
}

// Fetch downloads the full range page by page. The API caps rows per
// request, so the start cursor advances to the last received candle's close
// time after each page; boundary rows that reappear are de-duplicated by
// open time.
func (p *BinanceProvider) Fetch(ctx context.Context, key dataset.Key) ([]Candle, error) {
	if _, ok := binanceIntervals[key.Interval]; !ok {
		return nil, &FetchError{Source: key.Source, Err: fmt.Errorf("%w: %s", ErrUnsupportedInterval, key.Interval)}
	}
	span, err := ParseTimeRange(key.TimeRange)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}

	end := time.Now().UTC()
	start := end.Add(-span)
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()

	var candles []Candle
	seen := make(map[int64]struct{})
	for {
		page, err := p.fetchPage(ctx, key, startMs, endMs)
		if err != nil {
			return nil, &FetchError{Source: key.Source, Err: err}
		}
		if len(page) == 0 {
			break
		}
		for _, k := range page {
			if _, dup := seen[k.openMs]; dup {
				continue
			}
			seen[k.openMs] = struct{}{}
			candles = append(candles, k.candle)
		}
		last := page[len(page)-1]
		if len(page) < p.PageLimit || last.closeMs >= endMs {
			break
		}
		startMs = last.closeMs
		log.Infof("Fetched %d candles for %s, continuing from %s",
			len(candles), key.Ticker, time.UnixMilli(startMs).UTC().Format(time.RFC3339))
		if p.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Source: key.Source, Err: ctx.Err()}
			case <-time.After(p.RequestDelay):
			}
		}
	}

	if len(candles) == 0 {
		return nil, &FetchError{Source: key.Source, Err: ErrEmptyRange}
	}
	return candles, nil
}

type binanceKline struct {
	openMs  int64
	closeMs int64
	candle  Candle
}

// fetchPage requests one page with bounded exponential backoff. Rate limits
// and server errors are retried; other client errors fail immediately.
func (p *BinanceProvider) fetchPage(ctx context.Context, key dataset.Key, startMs, endMs int64) ([]binanceKline, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(key.Ticker))
	q.Set("interval", key.Interval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(p.PageLimit))
	reqURL := p.BaseURL + "?" + q.Encode()

	var page []binanceKline
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		rows, err := decodeKlineRows(resp.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		page = rows
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Warnf("Retrying klines request for %s in %s: %v", key.Ticker, wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return page, nil
}

// decodeKlineRows parses the Binance kline response: a JSON array of rows
// [openTime, open, high, low, close, volume, closeTime, ...], with times as
// numbers and prices as strings.
func decodeKlineRows(r io.Reader) ([]binanceKline, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw [][]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding klines: %w", err)
	}

	klines := make([]binanceKline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			return nil, fmt.Errorf("kline row has %d fields, expected at least 7", len(row))
		}
		openMs, err := klineInt(row[0])
		if err != nil {
			return nil, err
		}
		closeMs, err := klineInt(row[6])
		if err != nil {
			return nil, err
		}
		open, err := klinePrice(row[1])
		if err != nil {
			return nil, err
		}
		high, err := klinePrice(row[2])
		if err != nil {
			return nil, err
		}
		low, err := klinePrice(row[3])
		if err != nil {
			return nil, err
		}
		closeP, err := klinePrice(row[4])
		if err != nil {
			return nil, err
		}
		volume, err := klinePrice(row[5])
		if err != nil {
			return nil, err
		}
		klines = append(klines, binanceKline{
			openMs:  openMs,
			closeMs: closeMs,
			candle: Candle{
				OpenTime:  Timestamp{time.UnixMilli(openMs).UTC()},
				Open:      open,
				High:      high,
				Low:       low,
				Close:     closeP,
				Volume:    volume,
				CloseTime: Timestamp{time.UnixMilli(closeMs).UTC()},
			},
		})
	}
	return klines, nil
}

func klineInt(v interface{}) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected numeric kline field, got %T", v)
	}
	return n.Int64()
}

func klinePrice(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case json.Number:
		return decimal.NewFromString(t.String())
	}
	return decimal.Zero, fmt.Errorf("expected price kline field, got %T", v)
}
