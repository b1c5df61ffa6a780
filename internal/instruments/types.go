package instruments

// Instrument is one tradable symbol from the broker instruments dump.
// Only the fields the candle downloader needs are kept.
type Instrument struct {
	Token         int64
	TradingSymbol string
	Name          string
	Exchange      string
	TickSize      float64
	LotSize       int64
}
