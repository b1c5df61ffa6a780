package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/mvellank/candlemark/internal/dataset"
)

// ForexProvider downloads daily currency quotes from a frankfurter-style
// rates API. The feed carries one quote per day and no trade volume, so
// open/high/low/close collapse to the quote and volume is synthesized as
// zero. That is a documented approximation of the source, not an error.
type ForexProvider struct {
	BaseURL    string
	Client     *http.Client
	MaxRetries int
}

// NewForexProvider returns a provider for the given rates API base URL.
func NewForexProvider(baseURL string, maxRetries int) *ForexProvider {
	return &ForexProvider{
		BaseURL:    baseURL,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries: maxRetries,
	}
}

// Fetch downloads the quote series for a six-letter pair like EURUSD.
// The provider only has daily granularity: 1d is served natively and 1M is
// aggregated manually from daily rows; intraday intervals are unsupported.
func (p *ForexProvider) Fetch(ctx context.Context, key dataset.Key) ([]Candle, error) {
	if key.Interval != "1d" && key.Interval != "1M" {
		return nil, &FetchError{Source: key.Source, Err: fmt.Errorf("%w: %s (forex quotes are daily; use 1d or 1M)", ErrUnsupportedInterval, key.Interval)}
	}
	base, quote, err := splitPair(key.Ticker)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}
	span, err := ParseTimeRange(key.TimeRange)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}

	end := time.Now().UTC()
	start := end.Add(-span)

	daily, err := p.fetchDaily(ctx, base, quote, start, end)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}
	if len(daily) == 0 {
		return nil, &FetchError{Source: key.Source, Err: ErrEmptyRange}
	}

	if key.Interval == "1M" {
		log.Infof("Aggregating %d daily quotes into monthly candles for %s", len(daily), key.Ticker)
		return aggregateMonthly(daily), nil
	}
	return daily, nil
}

func splitPair(ticker string) (string, string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if len(t) != 6 {
		return "", "", fmt.Errorf("bad forex pair %q (expected e.g. EURUSD)", ticker)
	}
	return t[:3], t[3:], nil
}

func (p *ForexProvider) fetchDaily(ctx context.Context, base, quote string, start, end time.Time) ([]Candle, error) {
	q := url.Values{}
	q.Set("from", base)
	q.Set("to", quote)
	reqURL := fmt.Sprintf("%s/%s..%s?%s",
		strings.TrimRight(p.BaseURL, "/"),
		start.Format("2006-01-02"),
		end.Format("2006-01-02"),
		q.Encode(),
	)

	var payload struct {
		Rates map[string]map[string]json.Number `json:"rates"`
	}
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

		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding rates: %w", err))
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Warnf("Retrying rates request for %s%s in %s: %v", base, quote, wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(payload.Rates))
	for d := range payload.Rates {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	candles := make([]Candle, 0, len(dates))
	for _, d := range dates {
		rate, ok := payload.Rates[d][quote]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(rate.String())
		if err != nil {
			return nil, fmt.Errorf("bad rate %q on %s: %w", rate.String(), d, err)
		}
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("bad rate date %q: %w", d, err)
		}
		candles = append(candles, Candle{
			OpenTime:  Timestamp{day.UTC()},
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.Zero,
			CloseTime: Timestamp{day.UTC().Add(24*time.Hour - time.Second)},
		})
	}
	return candles, nil
}

// aggregateMonthly folds daily candles into calendar-month candles: first
// open, last close, running high/low. The input must be in date order.
func aggregateMonthly(daily []Candle) []Candle {
	var monthly []Candle
	var cur *Candle
	var curMonth string

	for _, c := range daily {
		month := c.OpenTime.Format("2006-01")
		if cur == nil || month != curMonth {
			if cur != nil {
				monthly = append(monthly, *cur)
			}
			copied := c
			cur = &copied
			curMonth = month
			continue
		}
		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.CloseTime = c.CloseTime
	}
	if cur != nil {
		monthly = append(monthly, *cur)
	}
	return monthly
}
