package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mvellank/candlemark/internal/chart"
	"github.com/mvellank/candlemark/internal/config"
	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/label"
	"github.com/mvellank/candlemark/internal/marketdata"
	"github.com/mvellank/candlemark/internal/review"
)

var (
	configFile string
	ticker     string
	interval   string
	timeRange  string
	sourceName string
	refresh    bool
	restart    bool
	parquetOut bool
	skip       int
	maxCandles int
	verbose    bool
)

var versionString = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "candlemark",
		Short:   "Download OHLC candles, render chart frames and label trades",
		Long:    `A utility pipeline for preparing labeled candlestick chart images: download historical OHLC data, render trailing-window chart frames, label them with trade entries/exits in a desktop window, and review the resulting trades.`,
		Version: versionString,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "config.yaml", "Path to config file")
	pf.StringVar(&ticker, "ticker", "", "Ticker symbol, e.g. BTCUSDT or EURUSD")
	pf.StringVar(&interval, "interval", "", "Chart interval, e.g. 15m")
	pf.StringVar(&timeRange, "time", "", `Time range, e.g. "1 month" or "1 year"`)
	pf.StringVar(&sourceName, "source", "binance", "Data source (binance, forex or kite)")
	pf.BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download OHLC data into the CSV cache",
		RunE:  runFetch,
	}
	fetchCmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch data even if the cache file exists")
	fetchCmd.Flags().BoolVar(&parquetOut, "parquet", false, "Also export the cache as monthly parquet files")

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render trailing-window chart frames from the cache",
		RunE:  runRender,
	}
	renderCmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch data even if the cache file exists")
	renderCmd.Flags().IntVar(&skip, "skip", -1, "Number of initial candles to skip (default 480)")
	renderCmd.Flags().IntVar(&maxCandles, "max-candles", 0, "Candles per frame window (default 96)")

	labelCmd := &cobra.Command{
		Use:   "label",
		Short: "Label chart frames with trade entries, exits and neutrals",
		RunE:  runLabel,
	}
	labelCmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch data even if the cache file exists")
	labelCmd.Flags().BoolVar(&restart, "restart", false, "Clear existing labels and start from the first frame")
	labelCmd.Flags().IntVar(&skip, "skip", -1, "Skip for frame generation if frames are missing (default 480)")
	labelCmd.Flags().IntVar(&maxCandles, "max-candles", 0, "Window for frame generation if frames are missing (default 96)")

	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Review labeled trades with paired entry/exit frames",
		RunE:  runReview,
	}
	reviewCmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch data even if the cache file exists")

	rootCmd.AddCommand(fetchCmd, renderCmd, labelCmd, reviewCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and builds the dataset
// key shared by every subcommand.
func setup() (config.Config, dataset.Key, error) {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return config.Config{}, dataset.Key{}, fmt.Errorf("loading configuration: %w", err)
	}

	if ticker == "" || interval == "" || timeRange == "" {
		return config.Config{}, dataset.Key{}, fmt.Errorf("--ticker, --interval and --time are required")
	}
	source, err := dataset.ParseSource(sourceName)
	if err != nil {
		return config.Config{}, dataset.Key{}, err
	}

	if skip >= 0 {
		cfg.Render.Skip = skip
	}
	if maxCandles > 0 {
		cfg.Render.Window = maxCandles
	}

	key := dataset.Key{
		Ticker:    ticker,
		Interval:  interval,
		TimeRange: timeRange,
		Source:    source,
	}
	return cfg, key, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigchan
		log.Infof("Received signal %v, shutting down", sig)
		cancel()
	}()
	return ctx, cancel
}

// ensureTable returns the candle table for the key, fetching on cache miss
// or when --refresh was given.
func ensureTable(ctx context.Context, cfg *config.Config, key dataset.Key) (*marketdata.Table, error) {
	provider, err := marketdata.NewProvider(cfg, key)
	if err != nil {
		return nil, err
	}
	return marketdata.Ensure(ctx, provider, key.CachePath(cfg.Data.DataDir), key, refresh)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, key, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	table, err := ensureTable(ctx, &cfg, key)
	if err != nil {
		return err
	}
	log.Infof("Cache ready: %d candles in %s", table.Len(), key.CachePath(cfg.Data.DataDir))

	if parquetOut {
		if err := marketdata.ExportParquet(cfg.Data.ParquetDir, table); err != nil {
			return err
		}
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, key, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	table, err := ensureTable(ctx, &cfg, key)
	if err != nil {
		return err
	}

	renderer := chart.NewRenderer(cfg.Render.Skip, cfg.Render.Window, cfg.Render.ImageWidth, cfg.Render.ImageHeight)
	written, err := renderer.RenderAll(table, key.ScreenshotDir(cfg.Data.ScreenshotsDir))
	if err != nil {
		return err
	}
	log.Infof("Rendered %d frames", written)
	return nil
}

func runLabel(cmd *cobra.Command, args []string) error {
	cfg, key, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	table, err := ensureTable(ctx, &cfg, key)
	if err != nil {
		return err
	}

	shotsDir := key.ScreenshotDir(cfg.Data.ScreenshotsDir)
	if empty, err := frameFolderEmpty(shotsDir); err != nil {
		return err
	} else if empty {
		log.Infof("No screenshots found, generating them first")
		renderer := chart.NewRenderer(cfg.Render.Skip, cfg.Render.Window, cfg.Render.ImageWidth, cfg.Render.ImageHeight)
		if _, err := renderer.RenderAll(table, shotsDir); err != nil {
			return err
		}
	}

	session, err := label.NewSession(table, shotsDir, key.ProcessedDir(cfg.Data.ProcessedDir), restart)
	if err != nil {
		return err
	}
	if session.Done() {
		log.Info("All frames are already labeled")
		return nil
	}

	label.Run(session, fmt.Sprintf("candlemark label - %s %s", ticker, interval))
	return nil
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, key, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	table, err := ensureTable(ctx, &cfg, key)
	if err != nil {
		return err
	}

	processedDir := key.ProcessedDir(cfg.Data.ProcessedDir)
	trades, err := review.ClosedTrades(processedDir, table)
	if err != nil {
		return err
	}
	log.Infof("Reconstructed %d closed trades", len(trades))

	nav := review.NewNavigator(trades)
	review.Run(nav, table, processedDir, fmt.Sprintf("candlemark review - %s %s", ticker, interval))
	return nil
}

// frameFolderEmpty reports whether the screenshot folder has no frames.
func frameFolderEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("scanning %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && dataset.IsFrameName(entry.Name()) {
			return false, nil
		}
	}
	return true, nil
}
