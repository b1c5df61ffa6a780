package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mvellank/candlemark/internal/dataset"
)

// Provider fetches an ordered candle series for a dataset key.
type Provider interface {
	Fetch(ctx context.Context, key dataset.Key) ([]Candle, error)
}

var (
	// ErrUnsupportedInterval means the provider has no granularity for the
	// requested interval token.
	ErrUnsupportedInterval = errors.New("unsupported interval")

	// ErrEmptyRange means the provider returned no rows for the range.
	ErrEmptyRange = errors.New("no candles in range")
)

// FetchError wraps any failure to produce a candle series from a provider.
type FetchError struct {
	Source dataset.Source
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// binanceIntervals is the accepted interval token set; Binance consumes the
// tokens verbatim, the other providers map or reject them.
var binanceIntervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// IntervalDuration returns the nominal duration of an interval token.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := binanceIntervals[interval]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedInterval, interval)
	}
	return d, nil
}

// ParseTimeRange converts a free-text range like "1 month" or "3 days" into
// a duration. Months and years are approximated as 30 and 365 days.
func ParseTimeRange(s string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("bad time range %q (expected e.g. \"1 month\")", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad time range count %q", fields[0])
	}
	unit := fields[1]
	switch {
	case strings.HasPrefix(unit, "month"):
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	case strings.HasPrefix(unit, "year"):
		return time.Duration(n) * 365 * 24 * time.Hour, nil
	case strings.HasPrefix(unit, "week"):
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case strings.HasPrefix(unit, "day"):
		return time.Duration(n) * 24 * time.Hour, nil
	case strings.HasPrefix(unit, "hour"):
		return time.Duration(n) * time.Hour, nil
	case strings.HasPrefix(unit, "min"):
		return time.Duration(n) * time.Minute, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", unit)
}
