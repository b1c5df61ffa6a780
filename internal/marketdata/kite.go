package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"github.com/mvellank/candlemark/internal/dataset"
)

// TokenResolver maps a trading symbol to the broker instrument token.
type TokenResolver interface {
	TokenForSymbol(symbol string) (int64, error)
}

// KiteProvider downloads historical candles from the Kite/Zerodha broker
// API. Unlike the REST providers it needs credentials and an instruments
// dump to resolve symbols to tokens.
type KiteProvider struct {
	Client       *kiteconnect.Client
	Resolver     TokenResolver
	MaxRetries   int
	RequestDelay time.Duration
}

// NewKiteProvider builds an authenticated provider from API credentials.
func NewKiteProvider(apiKey, accessToken string, resolver TokenResolver, maxRetries int, requestDelay time.Duration) (*KiteProvider, error) {
	if apiKey == "" || accessToken == "" {
		return nil, fmt.Errorf("kite source requires api key and access token (set kite.api_key and kite.access_token)")
	}
	client := kiteconnect.New(apiKey)
	client.SetAccessToken(accessToken)
	return &KiteProvider{
		Client:       client,
		Resolver:     resolver,
		MaxRetries:   maxRetries,
		RequestDelay: requestDelay,
	}, nil
}

// kiteIntervals maps interval tokens to Kite granularity names.
var kiteIntervals = map[string]string{
	"1m":  "minute",
	"3m":  "3minute",
	"5m":  "5minute",
	"15m": "15minute",
	"30m": "30minute",
	"1h":  "60minute",
	"1d":  "day",
}

// Fetch downloads the range, chunked to the broker's 60-day limit for
// intraday granularities.
func (p *KiteProvider) Fetch(ctx context.Context, key dataset.Key) ([]Candle, error) {
	interval, ok := kiteIntervals[key.Interval]
	if !ok {
		return nil, &FetchError{Source: key.Source, Err: fmt.Errorf("%w: %s", ErrUnsupportedInterval, key.Interval)}
	}
	span, err := ParseTimeRange(key.TimeRange)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}
	token, err := p.Resolver.TokenForSymbol(key.Ticker)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}
	nominal, err := IntervalDuration(key.Interval)
	if err != nil {
		return nil, &FetchError{Source: key.Source, Err: err}
	}

	to := time.Now()
	from := to.Add(-span)

	// Intraday requests are capped at 60 days per call.
	chunk := to.Sub(from)
	if interval != "day" && chunk > 60*24*time.Hour {
		chunk = 60 * 24 * time.Hour
	}

	var candles []Candle
	currentFrom := from
	for currentFrom.Before(to) {
		currentTo := currentFrom.Add(chunk)
		if currentTo.After(to) {
			currentTo = to
		}
		log.Infof("Downloading %s chunk %s to %s", key.Ticker,
			currentFrom.Format("2006-01-02"), currentTo.Format("2006-01-02"))

		data, err := p.fetchChunk(ctx, int(token), interval, currentFrom, currentTo)
		if err != nil {
			return nil, &FetchError{Source: key.Source, Err: err}
		}
		for _, d := range data {
			open := d.Date.Time
			candles = append(candles, Candle{
				OpenTime:  Timestamp{open.UTC()},
				Open:      decimal.NewFromFloat(d.Open),
				High:      decimal.NewFromFloat(d.High),
				Low:       decimal.NewFromFloat(d.Low),
				Close:     decimal.NewFromFloat(d.Close),
				Volume:    decimal.NewFromInt(int64(d.Volume)),
				CloseTime: Timestamp{open.Add(nominal).UTC()},
			})
		}

		currentFrom = currentTo.Add(time.Second)
		if currentFrom.Before(to) && p.RequestDelay > 0 {
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

func (p *KiteProvider) fetchChunk(ctx context.Context, token int, interval string, from, to time.Time) ([]kiteconnect.HistoricalData, error) {
	var data []kiteconnect.HistoricalData
	op := func() error {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		default:
		}
		var err error
		data, err = p.Client.GetHistoricalData(token, interval, from, to, false, false)
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Warnf("Retrying kite chunk in %s: %v", wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, fmt.Errorf("historical data request failed: %w", err)
	}
	return data, nil
}
