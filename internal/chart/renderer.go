package chart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	log "github.com/sirupsen/logrus"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/marketdata"
)

// Renderer rasterizes trailing candle windows into sequentially numbered
// PNG frames. Frames deliberately carry no axes, scales or labels: a
// downstream vision model should only see candle shape.
type Renderer struct {
	Skip   int
	Window int
	Width  int
	Height int
}

// NewRenderer returns a renderer with the given window geometry.
func NewRenderer(skip, window, width, height int) *Renderer {
	return &Renderer{Skip: skip, Window: window, Width: width, Height: height}
}

// RenderAll produces one frame per candle index in [Skip, len-1], each
// showing the trailing window ending at that index. The destination folder
// is deleted and recreated first so no stale frames from a previous
// skip/window combination survive; this is a deliberate destructive step.
// Returns the number of frames written.
func (r *Renderer) RenderAll(table *marketdata.Table, dir string) (int, error) {
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("cleaning screenshot folder %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating screenshot folder %s: %w", dir, err)
	}

	total := table.Len()
	if total <= r.Skip {
		log.Warnf("Not enough candles (%d) to start after skip=%d, no screenshots created", total, r.Skip)
		return 0, nil
	}

	planned := total - r.Skip
	log.Infof("Generating %d screenshots (skipping first %d of %d candles)", planned, r.Skip, total)

	written := 0
	for i := r.Skip; i < total; i++ {
		out := filepath.Join(dir, dataset.FrameName(i))
		if _, err := os.Stat(out); err == nil {
			// Never re-render an existing frame.
			continue
		}

		start := i - r.Window + 1
		if start < 0 {
			start = 0
		}
		if err := r.renderFrame(table.Candles[start:i+1], out); err != nil {
			return written, fmt.Errorf("rendering frame %d: %w", i, err)
		}
		written++

		if written%100 == 0 || i == total-1 {
			log.Infof("Saved %d/%d -> %s", written, planned, out)
		}
	}

	log.Infof("Screenshots saved under %s", dir)
	return written, nil
}

// renderFrame draws one candlestick window: white background, green up
// candles, red down candles, wick behind body.
func (r *Renderer) renderFrame(candles []marketdata.Candle, path string) error {
	dc := gg.NewContext(r.Width, r.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	lo, hi := priceBounds(candles)
	if hi <= lo {
		// Flat window (possible with quote-derived candles); pad so the
		// bodies still have somewhere to sit.
		hi = lo + 1
	}
	pad := (hi - lo) * 0.05
	lo -= pad
	hi += pad

	h := float64(r.Height)
	scaleY := func(price float64) float64 {
		return h - (price-lo)/(hi-lo)*h
	}

	slot := float64(r.Width) / float64(len(candles))
	bodyW := slot * 0.7

	for i, c := range candles {
		open := c.Open.InexactFloat64()
		closeP := c.Close.InexactFloat64()
		high := c.High.InexactFloat64()
		low := c.Low.InexactFloat64()

		x := float64(i)*slot + slot/2

		if closeP >= open {
			dc.SetRGB(0.18, 0.49, 0.20)
		} else {
			dc.SetRGB(0.78, 0.16, 0.16)
		}

		// Wick
		dc.SetLineWidth(1)
		dc.DrawLine(x, scaleY(high), x, scaleY(low))
		dc.Stroke()

		// Body
		top := scaleY(maxFloat(open, closeP))
		bottom := scaleY(minFloat(open, closeP))
		if bottom-top < 1 {
			bottom = top + 1
		}
		dc.DrawRectangle(x-bodyW/2, top, bodyW, bottom-top)
		dc.Fill()
	}

	return dc.SavePNG(path)
}

func priceBounds(candles []marketdata.Candle) (float64, float64) {
	lo := candles[0].Low.InexactFloat64()
	hi := candles[0].High.InexactFloat64()
	for _, c := range candles[1:] {
		if l := c.Low.InexactFloat64(); l < lo {
			lo = l
		}
		if h := c.High.InexactFloat64(); h > hi {
			hi = h
		}
	}
	return lo, hi
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
