package marketdata

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvellank/candlemark/internal/dataset"
)

// timeLayout is the timestamp format used in the cache files.
const timeLayout = "2006-01-02 15:04:05"

// Timestamp wraps time.Time with the cache file's CSV representation.
type Timestamp struct {
	time.Time
}

// MarshalCSV implements the gocsv marshaller.
func (t Timestamp) MarshalCSV() (string, error) {
	return t.UTC().Format(timeLayout), nil
}

// UnmarshalCSV implements the gocsv unmarshaller.
func (t *Timestamp) UnmarshalCSV(s string) error {
	parsed, err := time.Parse(timeLayout, s)
	if err != nil {
		// Tolerate RFC3339 rows from hand-edited files.
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// Candle is one OHLCV row. A candle's index is its position in the table;
// the index, not the timestamp, is the join key used by every downstream
// stage, so it must be stable across re-fetches of the same dataset key.
type Candle struct {
	OpenTime  Timestamp       `csv:"open_time"`
	Open      decimal.Decimal `csv:"open"`
	High      decimal.Decimal `csv:"high"`
	Low       decimal.Decimal `csv:"low"`
	Close     decimal.Decimal `csv:"close"`
	Volume    decimal.Decimal `csv:"volume"`
	CloseTime Timestamp       `csv:"close_time"`
}

// Table is an ordered candle series for one dataset key.
type Table struct {
	Key     dataset.Key
	Candles []Candle
}

// Len returns the number of candles.
func (t *Table) Len() int {
	return len(t.Candles)
}

// Candle returns the candle at a 0-based index.
func (t *Table) Candle(i int) (Candle, bool) {
	if i < 0 || i >= len(t.Candles) {
		return Candle{}, false
	}
	return t.Candles[i], true
}

// ClosePrice returns the close price at a 0-based index, or zero when the
// index is outside the table.
func (t *Table) ClosePrice(i int) decimal.Decimal {
	c, ok := t.Candle(i)
	if !ok {
		return decimal.Zero
	}
	return c.Close
}
