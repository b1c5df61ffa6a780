package dataset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Source identifies the market-data provider backing a dataset.
type Source string

const (
	SourceBinance Source = "binance"
	SourceForex   Source = "forex"
	SourceKite    Source = "kite"
)

// ParseSource validates a --source flag value.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(s)) {
	case SourceBinance:
		return SourceBinance, nil
	case SourceForex:
		return SourceForex, nil
	case SourceKite:
		return SourceKite, nil
	}
	return "", fmt.Errorf("unknown source %q (expected binance, forex or kite)", s)
}

// Categorized label folders under the processed dataset directory.
const (
	CategoryNormal   = "normal"
	CategoryBuy      = "buy"
	CategoryBuyExit  = "buy_exit"
	CategorySell     = "sell"
	CategorySellExit = "sell_exit"
)

// Categories returns the five label folder names in a fixed order.
func Categories() []string {
	return []string{CategoryNormal, CategoryBuy, CategoryBuyExit, CategorySell, CategorySellExit}
}

// Key identifies one dataset: the same key always maps to the same cache
// file, screenshot folder and processed folder, so re-running any stage
// against an existing key reuses or overwrites prior artifacts.
type Key struct {
	Ticker    string
	Interval  string
	TimeRange string
	Source    Source
}

// SanitizeTimeRange normalizes a free-text range like "1 Month" to "1month"
// for use in file and folder names.
func SanitizeTimeRange(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

func (k Key) slug() string {
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(k.Ticker), k.Interval, SanitizeTimeRange(k.TimeRange))
}

// CSVName returns the cache filename for the key. Non-default sources get a
// filename suffix so the same ticker can be cached per provider.
func (k Key) CSVName() string {
	switch k.Source {
	case SourceForex, SourceKite:
		return fmt.Sprintf("%s_%s.csv", k.slug(), k.Source)
	default:
		return k.slug() + ".csv"
	}
}

// CachePath returns the cache file location under the data directory.
func (k Key) CachePath(dataDir string) string {
	return filepath.Join(dataDir, k.CSVName())
}

// ScreenshotDir returns the per-dataset folder holding the raw frame pool.
func (k Key) ScreenshotDir(root string) string {
	return filepath.Join(root, k.slug())
}

// ProcessedDir returns the per-dataset folder holding the label folders.
func (k Key) ProcessedDir(root string) string {
	return filepath.Join(root, k.slug())
}

// CategoryDir returns one label folder under the processed dataset folder.
func (k Key) CategoryDir(root, category string) string {
	return filepath.Join(k.ProcessedDir(root), category)
}

var frameRe = regexp.MustCompile(`^candle_(\d+)\.png$`)

// FrameName returns the screenshot filename for a 0-based candle index.
// Filenames carry a 1-based zero-padded sequence number.
func FrameName(index int) string {
	return fmt.Sprintf("candle_%05d.png", index+1)
}

// FrameIndex decodes a screenshot filename back to its 0-based candle index.
func FrameIndex(name string) (int, error) {
	m := frameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("not a frame filename: %q", name)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad frame number in %q", name)
	}
	return n - 1, nil
}

// IsFrameName reports whether name looks like a rendered frame file.
func IsFrameName(name string) bool {
	return frameRe.MatchString(name)
}
