package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config defines the application configuration structure
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Render RenderConfig `mapstructure:"render"`
	Kite   KiteConfig   `mapstructure:"kite"`
}

// DataConfig defines where datasets and their artifacts live
type DataConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	ScreenshotsDir string `mapstructure:"screenshots_dir"`
	ProcessedDir   string `mapstructure:"processed_dir"`
	ParquetDir     string `mapstructure:"parquet_dir"`
}

// FetchConfig defines the OHLC download configuration
type FetchConfig struct {
	BinanceBaseURL string `mapstructure:"binance_base_url"`
	ForexBaseURL   string `mapstructure:"forex_base_url"`
	PageLimit      int    `mapstructure:"page_limit"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RequestDelay   int    `mapstructure:"request_delay"`
}

// RenderConfig defines the screenshot generation configuration
type RenderConfig struct {
	Skip        int `mapstructure:"skip"`
	Window      int `mapstructure:"window"`
	ImageWidth  int `mapstructure:"image_width"`
	ImageHeight int `mapstructure:"image_height"`
}

// KiteConfig defines the optional Kite/Zerodha source configuration
type KiteConfig struct {
	APIKey          string `mapstructure:"api_key"`
	AccessToken     string `mapstructure:"access_token"`
	InstrumentsURL  string `mapstructure:"instruments_url"`
	InstrumentsPath string `mapstructure:"instruments_path"`
}

// LoadConfig loads configuration from file and overrides with environment variables
func LoadConfig(path string) (Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CANDLEMARK")

	// Explicit mappings for nested config keys to env vars
	viper.BindEnv("data.data_dir", "CANDLEMARK_DATA_DIR")
	viper.BindEnv("data.screenshots_dir", "CANDLEMARK_SCREENSHOTS_DIR")
	viper.BindEnv("data.processed_dir", "CANDLEMARK_PROCESSED_DIR")
	viper.BindEnv("data.parquet_dir", "CANDLEMARK_PARQUET_DIR")

	viper.BindEnv("fetch.binance_base_url", "CANDLEMARK_BINANCE_BASE_URL")
	viper.BindEnv("fetch.forex_base_url", "CANDLEMARK_FOREX_BASE_URL")
	viper.BindEnv("fetch.page_limit", "CANDLEMARK_PAGE_LIMIT")
	viper.BindEnv("fetch.max_retries", "CANDLEMARK_MAX_RETRIES")
	viper.BindEnv("fetch.request_delay", "CANDLEMARK_REQUEST_DELAY")

	viper.BindEnv("render.skip", "CANDLEMARK_RENDER_SKIP")
	viper.BindEnv("render.window", "CANDLEMARK_RENDER_WINDOW")
	viper.BindEnv("render.image_width", "CANDLEMARK_IMAGE_WIDTH")
	viper.BindEnv("render.image_height", "CANDLEMARK_IMAGE_HEIGHT")

	viper.BindEnv("kite.api_key", "CANDLEMARK_KITE_API_KEY")
	viper.BindEnv("kite.access_token", "CANDLEMARK_KITE_ACCESS_TOKEN")
	viper.BindEnv("kite.instruments_url", "CANDLEMARK_KITE_INSTRUMENTS_URL")
	viper.BindEnv("kite.instruments_path", "CANDLEMARK_KITE_INSTRUMENTS_PATH")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Missing file is fine; a malformed one is worth a warning.
			fmt.Printf("Error reading config file %s: %v, falling back to environment variables\n", path, err)
		}
	}

	// Environment variables take precedence over config file values.
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&config)
	return config, nil
}

// applyDefaults sets default values for any config values not set from file or environment
func applyDefaults(config *Config) {
	if config.Data.DataDir == "" {
		config.Data.DataDir = "data"
	}
	if config.Data.ScreenshotsDir == "" {
		config.Data.ScreenshotsDir = "screenshots"
	}
	if config.Data.ProcessedDir == "" {
		config.Data.ProcessedDir = "processed"
	}
	if config.Data.ParquetDir == "" {
		config.Data.ParquetDir = "parquet"
	}

	if config.Fetch.BinanceBaseURL == "" {
		config.Fetch.BinanceBaseURL = "https://api.binance.com/api/v3/klines"
	}
	if config.Fetch.ForexBaseURL == "" {
		config.Fetch.ForexBaseURL = "https://api.frankfurter.app"
	}
	if config.Fetch.PageLimit == 0 {
		config.Fetch.PageLimit = 1000
	}
	if config.Fetch.MaxRetries == 0 {
		config.Fetch.MaxRetries = 3
	}
	if config.Fetch.RequestDelay == 0 {
		config.Fetch.RequestDelay = 500
	}

	if config.Render.Skip == 0 {
		config.Render.Skip = 480
	}
	if config.Render.Window == 0 {
		config.Render.Window = 96
	}
	if config.Render.ImageWidth == 0 {
		config.Render.ImageWidth = 640
	}
	if config.Render.ImageHeight == 0 {
		config.Render.ImageHeight = 480
	}

	if config.Kite.InstrumentsURL == "" {
		config.Kite.InstrumentsURL = "https://api.kite.trade/instruments/NSE"
	}
	if config.Kite.InstrumentsPath == "" {
		config.Kite.InstrumentsPath = "instruments.csv"
	}
}
