package label

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/mvellank/candlemark/internal/dataset"
)

// Window is the labeling UI: the current frame, the state-dependent action
// buttons, undo, and a status/stats strip.
type Window struct {
	session *Session
	win     fyne.Window
	image   *canvas.Image
	status  *widget.Label
	stats   *widget.Label
	buttons map[Action]*widget.Button
	undoBtn *widget.Button
}

// Run opens the labeling window and blocks until it is closed.
func Run(session *Session, title string) {
	a := app.New()
	w := a.NewWindow(title)

	lw := &Window{
		session: session,
		win:     w,
		buttons: make(map[Action]*widget.Button),
	}

	lw.image = canvas.NewImageFromFile("")
	lw.image.FillMode = canvas.ImageFillContain
	lw.image.SetMinSize(fyne.NewSize(560, 440))

	lw.status = widget.NewLabel("")
	lw.stats = widget.NewLabel("")

	for _, action := range Actions() {
		action := action
		lw.buttons[action] = widget.NewButton(buttonText(action), func() {
			lw.do(action)
		})
	}
	lw.undoBtn = widget.NewButton("Undo (Backspace)", func() {
		lw.undo()
	})

	actionRow := container.NewGridWithColumns(5,
		lw.buttons[ActionBuyEntry],
		lw.buttons[ActionSellEntry],
		lw.buttons[ActionBuyExit],
		lw.buttons[ActionSellExit],
		lw.buttons[ActionNeutral],
	)
	bottom := container.NewVBox(actionRow, lw.undoBtn, lw.status, lw.stats)

	w.SetContent(container.NewBorder(nil, bottom, nil, nil, lw.image))
	w.Resize(fyne.NewSize(640, 720))
	w.Canvas().SetOnTypedKey(lw.typedKey)

	lw.refresh()
	w.ShowAndRun()
}

func buttonText(a Action) string {
	switch a {
	case ActionBuyEntry:
		return "Buy (B)"
	case ActionSellEntry:
		return "Sell (S)"
	case ActionBuyExit:
		return "Exit Buy (E)"
	case ActionSellExit:
		return "Exit Sell (E)"
	}
	return "Neutral (Left)"
}

func (lw *Window) refresh() {
	pos, total := lw.session.Progress()

	if path, ok := lw.session.CurrentFramePath(); ok {
		idx, _ := lw.session.CurrentIndex()
		lw.image.File = path
		lw.image.Refresh()
		lw.status.SetText(fmt.Sprintf("Frame %d/%d: %s", pos, total, dataset.FrameName(idx)))
	} else {
		lw.status.SetText(fmt.Sprintf("All %d frames labeled. You can close the window.", total))
	}

	for action, btn := range lw.buttons {
		if lw.session.CanDo(action) {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
	if _, has := lw.session.Ledger().LastEvent(); has {
		lw.undoBtn.Enable()
	} else {
		lw.undoBtn.Disable()
	}

	ledger := lw.session.Ledger()
	statsText := fmt.Sprintf("Position: %s | Closed trades: %d", ledger.Position(), len(ledger.ClosedTrades()))
	if open, ok := ledger.OpenTrade(); ok {
		statsText += fmt.Sprintf(" | Open %s since %s @ %s",
			open.Side, dataset.FrameName(open.EntryIndex), open.EntryPrice)
	}
	lw.stats.SetText(statsText)
}

func (lw *Window) do(action Action) {
	if !lw.session.CanDo(action) {
		return
	}
	if err := lw.session.Do(action); err != nil {
		dialog.ShowError(err, lw.win)
		return
	}
	lw.refresh()
}

func (lw *Window) undo() {
	ev, undone, err := lw.session.Undo()
	if err != nil {
		dialog.ShowError(err, lw.win)
		return
	}
	lw.refresh()
	if !undone {
		lw.status.SetText("Nothing to undo")
		return
	}
	lw.status.SetText(fmt.Sprintf("Undid %s of %s, relabel this frame", ev.Action, dataset.FrameName(ev.Index)))
}

func (lw *Window) typedKey(e *fyne.KeyEvent) {
	switch e.Name {
	case fyne.KeyLeft:
		lw.do(ActionNeutral)
	case fyne.KeyB:
		lw.do(ActionBuyEntry)
	case fyne.KeyS:
		lw.do(ActionSellEntry)
	case fyne.KeyE, fyne.KeyX:
		if lw.session.CanDo(ActionBuyExit) {
			lw.do(ActionBuyExit)
		} else if lw.session.CanDo(ActionSellExit) {
			lw.do(ActionSellExit)
		}
	case fyne.KeyBackspace:
		lw.undo()
	case fyne.KeyEscape:
		lw.win.Close()
	}
}
