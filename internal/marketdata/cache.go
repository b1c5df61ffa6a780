package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"

	"github.com/mvellank/candlemark/internal/dataset"
)

// Load reads a cached candle table from disk.
func Load(path string, key dataset.Key) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()

	var candles []Candle
	if err := gocsv.UnmarshalFile(f, &candles); err != nil {
		return nil, fmt.Errorf("parsing cache file %s: %w", path, err)
	}
	return &Table{Key: key, Candles: candles}, nil
}

// Save writes a candle table to its cache file, creating the data directory
// as needed. An existing file for the same key is overwritten; that is the
// intended idempotency of the dataset key.
func Save(path string, table *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&table.Candles, f); err != nil {
		return fmt.Errorf("writing cache file %s: %w", path, err)
	}
	return nil
}

// Ensure returns the table for a key, fetching and caching it when the
// cache file is missing or refresh is set.
func Ensure(ctx context.Context, provider Provider, path string, key dataset.Key, refresh bool) (*Table, error) {
	if !refresh {
		if _, err := os.Stat(path); err == nil {
			log.Infof("Using existing data file: %s", path)
			return Load(path, key)
		}
	}

	log.Infof("Fetching data: %s %s %s from %s", key.Ticker, key.Interval, key.TimeRange, key.Source)
	candles, err := provider.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	table := &Table{Key: key, Candles: candles}
	if err := Save(path, table); err != nil {
		return nil, err
	}
	log.Infof("Saved %d candles to %s", table.Len(), path)
	return table, nil
}
