package instruments

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Manager downloads the broker instruments CSV and resolves trading
// symbols to instrument tokens for historical data requests.
type Manager struct {
	url      string
	path     string
	bySymbol map[string]Instrument
}

// NewManager returns a manager that caches the instruments dump at path.
func NewManager(url, path string) *Manager {
	return &Manager{
		url:      url,
		path:     path,
		bySymbol: make(map[string]Instrument),
	}
}

// Load fetches the instruments dump when the local copy is missing and
// parses it into the symbol map.
func (m *Manager) Load() error {
	if _, err := os.Stat(m.path); err != nil {
		if err := m.download(); err != nil {
			return fmt.Errorf("downloading instruments: %w", err)
		}
	}
	return m.parse()
}

// TokenForSymbol returns the instrument token for a trading symbol.
func (m *Manager) TokenForSymbol(symbol string) (int64, error) {
	inst, ok := m.bySymbol[symbol]
	if !ok {
		return 0, fmt.Errorf("instrument not found: %s", symbol)
	}
	return inst.Token, nil
}

func (m *Manager) download() error {
	log.Infof("Downloading instruments dump from %s", m.url)

	resp, err := http.Get(m.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("instruments download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating instruments directory: %w", err)
	}
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("creating instruments file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("saving instruments file: %w", err)
	}
	return nil
}

func (m *Manager) parse() error {
	f, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("opening instruments file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading instruments header: %w", err)
	}
	columns := make(map[string]int)
	for i, col := range header {
		columns[col] = i
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading instruments record: %w", err)
		}

		symbol := field(record, columns, "tradingsymbol")
		if symbol == "" {
			continue
		}
		m.bySymbol[symbol] = Instrument{
			Token:         parseInt(field(record, columns, "instrument_token")),
			TradingSymbol: symbol,
			Name:          field(record, columns, "name"),
			Exchange:      field(record, columns, "exchange"),
			TickSize:      parseFloat(field(record, columns, "tick_size")),
			LotSize:       parseInt(field(record, columns, "lot_size")),
		}
		count++
	}

	log.Infof("Loaded %d instruments", count)
	return nil
}

func field(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
