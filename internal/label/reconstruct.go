package label

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mvellank/candlemark/internal/dataset"
	"github.com/mvellank/candlemark/internal/marketdata"
)

// AmbiguityError means the label folders do not describe a single valid
// labeling history. It is deliberately fatal: the tool never guesses a
// precedence between conflicting folders.
type AmbiguityError struct {
	Index  int
	Detail string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("label folders are ambiguous at %s: %s (run with --restart or fix the processed folders)",
		dataset.FrameName(e.Index), e.Detail)
}

// ScanEvents rebuilds the ordered event log from the five label folders.
// A frame filed under more than one folder is an ambiguity, not a
// precedence question.
func ScanEvents(processedDir string) ([]Event, error) {
	byIndex := make(map[int]Event)

	for _, category := range dataset.Categories() {
		dir := filepath.Join(processedDir, category)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		action, _ := ActionForCategory(category)
		for _, entry := range entries {
			if entry.IsDir() || !dataset.IsFrameName(entry.Name()) {
				continue
			}
			idx, err := dataset.FrameIndex(entry.Name())
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", dir, err)
			}
			if prev, dup := byIndex[idx]; dup {
				return nil, &AmbiguityError{
					Index:  idx,
					Detail: fmt.Sprintf("filed under both %s and %s", prev.Action.Category(), category),
				}
			}
			byIndex[idx] = Event{Action: action, Index: idx}
		}
	}

	events := make([]Event, 0, len(byIndex))
	for _, ev := range byIndex {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Index < events[j].Index })
	return events, nil
}

// Replay drives a fresh ledger through a reconstructed event log using the
// same transition function live labeling uses. Any sequence the live
// machine would have rejected (for example a second entry while a position
// is open) surfaces as an ambiguity.
func Replay(events []Event, table *marketdata.Table) (*Ledger, error) {
	ledger := NewLedger()
	for _, ev := range events {
		if err := ledger.Apply(ev, table.ClosePrice(ev.Index)); err != nil {
			return nil, &AmbiguityError{Index: ev.Index, Detail: err.Error()}
		}
	}
	return ledger, nil
}
