package marketdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/mvellank/candlemark/internal/dataset"
)

// candleRow is the parquet projection of a candle, partition-friendly by
// date components.
type candleRow struct {
	Ticker    string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, encoding=DELTA_BINARY_PACKED"`
	Date      string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Year      int32   `parquet:"name=year, type=INT32, encoding=PLAIN_DICTIONARY"`
	Month     int32   `parquet:"name=month, type=INT32, encoding=PLAIN_DICTIONARY"`
	Day       int32   `parquet:"name=day, type=INT32, encoding=PLAIN_DICTIONARY"`
	Open      float64 `parquet:"name=open, type=DOUBLE, encoding=PLAIN"`
	High      float64 `parquet:"name=high, type=DOUBLE, encoding=PLAIN"`
	Low       float64 `parquet:"name=low, type=DOUBLE, encoding=PLAIN"`
	Close     float64 `parquet:"name=close, type=DOUBLE, encoding=PLAIN"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE, encoding=PLAIN"`
}

// ExportParquet writes the table as one parquet file per calendar month
// under parquetDir. This is an optional export alongside the CSV cache.
func ExportParquet(parquetDir string, table *Table) error {
	if table.Len() == 0 {
		log.Warnf("No candles to export for %s", table.Key.Ticker)
		return nil
	}

	byMonth := make(map[string][]Candle)
	for _, c := range table.Candles {
		yearMonth := c.OpenTime.Format("2006-01")
		byMonth[yearMonth] = append(byMonth[yearMonth], c)
	}

	if err := os.MkdirAll(parquetDir, 0755); err != nil {
		return fmt.Errorf("creating parquet directory: %w", err)
	}

	slug := strings.TrimSuffix(table.Key.CSVName(), ".csv")
	for yearMonth, candles := range byMonth {
		filename := filepath.Join(parquetDir, fmt.Sprintf("%s_%s.parquet", slug, yearMonth))
		if err := writeCandles(filename, table.Key, candles); err != nil {
			return fmt.Errorf("writing parquet file for %s: %w", yearMonth, err)
		}
		log.Infof("Exported %d candles for %s to %s", len(candles), yearMonth, filename)
	}
	return nil
}

func writeCandles(filename string, key dataset.Key, candles []Candle) error {
	fw, err := local.NewLocalFileWriter(filename)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(candleRow), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.RowGroupSize = 128 * 1024 * 1024 // 128MB row groups
	pw.PageSize = 8 * 1024              // 8KB pages

	ticker := strings.ToUpper(key.Ticker)
	for _, c := range candles {
		open := c.OpenTime.Time
		row := candleRow{
			Ticker:    ticker,
			Timestamp: open.Unix(),
			Date:      open.Format("2006-01-02"),
			Year:      int32(open.Year()),
			Month:     int32(open.Month()),
			Day:       int32(open.Day()),
			Open:      c.Open.InexactFloat64(),
			High:      c.High.InexactFloat64(),
			Low:       c.Low.InexactFloat64(),
			Close:     c.Close.InexactFloat64(),
			Volume:    c.Volume.InexactFloat64(),
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("failed to write parquet data: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
