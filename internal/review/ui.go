package review

import (
	"fmt"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/marketdata"
)

// Window shows each closed trade as its entry and exit frames side by
// side, with the joined candle rows and the trade result.
type Window struct {
	nav          *Navigator
	table        *marketdata.Table
	processedDir string

	win         fyne.Window
	entryImage  *canvas.Image
	exitImage   *canvas.Image
	status      *widget.Label
	entryFile   *widget.Label
	exitFile    *widget.Label
	entryCandle *widget.Label
	exitCandle  *widget.Label
	result      *widget.Label
	backBtn     *widget.Button
	nextBtn     *widget.Button
}

// Run opens the trade review window and blocks until it is closed.
func Run(nav *Navigator, table *marketdata.Table, processedDir, title string) {
	a := app.New()
	w := a.NewWindow(title)

	rw := &Window{
		nav:          nav,
		table:        table,
		processedDir: processedDir,
		win:          w,
	}

	rw.entryImage = canvas.NewImageFromFile("")
	rw.entryImage.FillMode = canvas.ImageFillContain
	rw.entryImage.SetMinSize(fyne.NewSize(560, 440))
	rw.exitImage = canvas.NewImageFromFile("")
	rw.exitImage.FillMode = canvas.ImageFillContain
	rw.exitImage.SetMinSize(fyne.NewSize(560, 440))

	rw.status = widget.NewLabel("")
	rw.entryFile = widget.NewLabel("Entry File: -")
	rw.exitFile = widget.NewLabel("Exit File: -")
	rw.entryCandle = widget.NewLabel("Entry Candle: -")
	rw.exitCandle = widget.NewLabel("Exit Candle: -")
	rw.result = widget.NewLabel("Result: -")

	rw.backBtn = widget.NewButton("Back", func() {
		if rw.nav.Prev() {
			rw.refresh()
		}
	})
	rw.nextBtn = widget.NewButton("Next", func() {
		if rw.nav.Next() {
			rw.refresh()
		}
	})

	images := container.NewGridWithColumns(2, rw.entryImage, rw.exitImage)
	details := container.NewVBox(rw.status, rw.entryFile, rw.exitFile, rw.entryCandle, rw.exitCandle, rw.result)
	buttons := container.NewGridWithColumns(2, rw.backBtn, rw.nextBtn)

	w.SetContent(container.NewBorder(nil, container.NewVBox(details, buttons), nil, nil, images))
	w.Resize(fyne.NewSize(1280, 720))
	w.Canvas().SetOnTypedKey(func(e *fyne.KeyEvent) {
		switch e.Name {
		case fyne.KeyLeft:
			if rw.nav.Prev() {
				rw.refresh()
			}
		case fyne.KeyRight:
			if rw.nav.Next() {
				rw.refresh()
			}
		case fyne.KeyEscape:
			rw.win.Close()
		}
	})

	rw.refresh()
	w.ShowAndRun()
}

func (rw *Window) refresh() {
	trade, ok := rw.nav.Current()
	if !ok {
		// Distinct empty state: no navigation, no stale details.
		rw.status.SetText("No closed trades found.")
		rw.entryFile.SetText("Entry File: -")
		rw.exitFile.SetText("Exit File: -")
		rw.entryCandle.SetText("Entry Candle: -")
		rw.exitCandle.SetText("Exit Candle: -")
		rw.result.SetText("Result: -")
		rw.backBtn.Disable()
		rw.nextBtn.Disable()
		return
	}

	entryPath := EntryFramePath(rw.processedDir, trade)
	exitPath := ExitFramePath(rw.processedDir, trade)
	rw.entryImage.File = entryPath
	rw.entryImage.Refresh()
	rw.exitImage.File = exitPath
	rw.exitImage.Refresh()

	rw.status.SetText(fmt.Sprintf("Trade %d/%d  %s  %s -> %s",
		rw.nav.Index()+1, rw.nav.Len(), trade.Side,
		dataset.FrameName(trade.EntryIndex), dataset.FrameName(trade.ExitIndex)))
	rw.entryFile.SetText("Entry File: " + filepath.Base(entryPath))
	rw.exitFile.SetText("Exit File: " + filepath.Base(exitPath))
	rw.entryCandle.SetText("Entry Candle: " + rw.formatCandle(trade.EntryIndex))
	rw.exitCandle.SetText("Exit Candle: " + rw.formatCandle(trade.ExitIndex))
	rw.result.SetText("Result: " + trade.PnL().StringFixed(2))

	if rw.nav.HasPrev() {
		rw.backBtn.Enable()
	} else {
		rw.backBtn.Disable()
	}
	if rw.nav.HasNext() {
		rw.nextBtn.Enable()
	} else {
		rw.nextBtn.Disable()
	}
}

func (rw *Window) formatCandle(index int) string {
	c, ok := rw.table.Candle(index)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%s  O:%s H:%s L:%s C:%s V:%s",
		c.OpenTime.Format("2006-01-02 15:04"),
		c.Open, c.High, c.Low, c.Close, c.Volume)
}
