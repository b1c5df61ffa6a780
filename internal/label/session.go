package label

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/marketdata"
)

// Session couples the ledger with the dataset's folders: the raw frame
// pool and the five label folders. Every action copies the current frame
// into its folder before touching the ledger, so a failed copy aborts the
// transition with no state change.
type Session struct {
	table        *marketdata.Table
	shotsDir     string
	processedDir string
	ledger       *Ledger
	frames       []int       // 0-based candle indices present in the pool, sorted
	framePos     map[int]int // candle index -> position in frames
	cursor       int         // position in frames of the next frame to label
}

// NewSession opens a labeling session over an existing frame pool.
// With restart set, prior label files are removed and the session starts
// fresh; otherwise history is rebuilt from the label folders and replayed.
func NewSession(table *marketdata.Table, shotsDir, processedDir string, restart bool) (*Session, error) {
	frames, err := listFrames(shotsDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no screenshots found in %s (run render first)", shotsDir)
	}

	for _, category := range dataset.Categories() {
		if err := os.MkdirAll(filepath.Join(processedDir, category), 0755); err != nil {
			return nil, fmt.Errorf("creating label folder %s: %w", category, err)
		}
	}

	if restart {
		removed, err := clearCategories(processedDir)
		if err != nil {
			return nil, err
		}
		log.Infof("Restart requested: removed %d previously labeled frames", removed)
	}

	events, err := ScanEvents(processedDir)
	if err != nil {
		return nil, err
	}
	ledger, err := Replay(events, table)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		log.Infof("Resumed session: %d labeled frames, %d trades, position %s",
			len(events), len(ledger.Trades()), ledger.Position())
	}

	labeled := make(map[int]struct{}, len(events))
	for _, ev := range events {
		labeled[ev.Index] = struct{}{}
	}

	framePos := make(map[int]int, len(frames))
	for pos, idx := range frames {
		framePos[idx] = pos
	}

	// The next frame to label is the lowest-index frame absent from all
	// five label folders.
	cursor := len(frames)
	for pos, idx := range frames {
		if _, done := labeled[idx]; !done {
			cursor = pos
			break
		}
	}

	return &Session{
		table:        table,
		shotsDir:     shotsDir,
		processedDir: processedDir,
		ledger:       ledger,
		frames:       frames,
		framePos:     framePos,
		cursor:       cursor,
	}, nil
}

// Ledger exposes the session's ledger for display.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Done reports whether every frame in the pool has been labeled.
func (s *Session) Done() bool {
	return s.cursor >= len(s.frames)
}

// CurrentIndex returns the candle index of the frame under the cursor.
func (s *Session) CurrentIndex() (int, bool) {
	if s.Done() {
		return 0, false
	}
	return s.frames[s.cursor], true
}

// CurrentFramePath returns the pool path of the frame under the cursor.
func (s *Session) CurrentFramePath() (string, bool) {
	idx, ok := s.CurrentIndex()
	if !ok {
		return "", false
	}
	return filepath.Join(s.shotsDir, dataset.FrameName(idx)), true
}

// Progress returns the 1-based cursor position and the pool size.
func (s *Session) Progress() (int, int) {
	pos := s.cursor + 1
	if pos > len(s.frames) {
		pos = len(s.frames)
	}
	return pos, len(s.frames)
}

// CanDo reports whether an action is enabled for the current position.
func (s *Session) CanDo(a Action) bool {
	return !s.Done() && s.ledger.CanApply(a)
}

// Do applies one labeling action to the current frame: copy the frame into
// the action's folder, apply the event, advance the cursor.
func (s *Session) Do(a Action) error {
	idx, ok := s.CurrentIndex()
	if !ok {
		return fmt.Errorf("all frames are already labeled")
	}

	src := filepath.Join(s.shotsDir, dataset.FrameName(idx))
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source screenshot missing for %s: %w", dataset.FrameName(idx), err)
	}

	dst := filepath.Join(s.processedDir, a.Category(), dataset.FrameName(idx))
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copying %s to %s: %w", dataset.FrameName(idx), a.Category(), err)
	}

	if err := s.ledger.Apply(Event{Action: a, Index: idx}, s.table.ClosePrice(idx)); err != nil {
		// Roll the copy back so the folders stay consistent with the ledger.
		os.Remove(dst)
		return err
	}

	s.cursor++
	return nil
}

// Undo inverts the most recent action: the label file is deleted, the
// ledger effect is unwound and the cursor returns to the undone frame.
// With empty history it reports a no-op instead of failing.
func (s *Session) Undo() (Event, bool, error) {
	ev, ok := s.ledger.LastEvent()
	if !ok {
		return Event{}, false, nil
	}

	path := filepath.Join(s.processedDir, ev.Action.Category(), dataset.FrameName(ev.Index))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ev, false, fmt.Errorf("removing %s: %w", path, err)
	}

	s.ledger.Unapply()

	if pos, ok := s.framePos[ev.Index]; ok {
		s.cursor = pos
	} else if s.cursor > 0 {
		s.cursor--
	}
	return ev, true, nil
}

// clearCategories removes every labeled frame from the five label folders,
// leaving the raw pool untouched.
func clearCategories(processedDir string) (int, error) {
	removed := 0
	for _, category := range dataset.Categories() {
		dir := filepath.Join(processedDir, category)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !dataset.IsFrameName(entry.Name()) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}

func listFrames(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	var frames []int
	for _, entry := range entries {
		if entry.IsDir() || !dataset.IsFrameName(entry.Name()) {
			continue
		}
		idx, err := dataset.FrameIndex(entry.Name())
		if err != nil {
			continue
		}
		frames = append(frames, idx)
	}
	sort.Ints(frames)
	return frames, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
