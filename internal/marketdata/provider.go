package marketdata

import (
	"fmt"
	"time"

	"github.com/mvellank/candlemark/internal/config"
	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/instruments"
)

// NewProvider builds the provider for a dataset key from configuration.
func NewProvider(cfg *config.Config, key dataset.Key) (Provider, error) {
	delay := time.Duration(cfg.Fetch.RequestDelay) * time.Millisecond

	switch key.Source {
	case dataset.SourceBinance:
		return NewBinanceProvider(cfg.Fetch.BinanceBaseURL, cfg.Fetch.PageLimit, cfg.Fetch.MaxRetries, delay), nil
	case dataset.SourceForex:
		return NewForexProvider(cfg.Fetch.ForexBaseURL, cfg.Fetch.MaxRetries), nil
	case dataset.SourceKite:
		mgr := instruments.NewManager(cfg.Kite.InstrumentsURL, cfg.Kite.InstrumentsPath)
		if err := mgr.Load(); err != nil {
			return nil, fmt.Errorf("loading instruments for kite source: %w", err)
		}
		return NewKiteProvider(cfg.Kite.APIKey, cfg.Kite.AccessToken, mgr, cfg.Fetch.MaxRetries, delay)
	}
	return nil, fmt.Errorf("no provider for source %q", key.Source)
}
