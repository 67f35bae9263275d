package metrics

import (
	"fmt"
	"sort"
	"time"

	"phasewatch/internal/logger"
	"phasewatch/internal/storage"
)

// PhaseWindow is the interval during which one named workflow phase was
// active. End is nil while the phase is still running.
//
// Membership is half-open: an event whose timestamp equals a boundary belongs
// to the window that boundary opens.
type PhaseWindow struct {
	Phase string
	Start time.Time
	End   *time.Time
}

// Contains reports whether ts falls inside the window's [start, end)
// interval. An active window accepts everything at or after its start.
func (w *PhaseWindow) Contains(ts time.Time) bool {
	if ts.Before(w.Start) {
		return false
	}
	return w.End == nil || ts.Before(*w.End)
}

// Duration returns the window length, measuring active windows up to now.
func (w *PhaseWindow) Duration(now time.Time) time.Duration {
	end := now
	if w.End != nil {
		end = *w.End
	}
	if end.Before(w.Start) {
		return 0
	}
	return end.Sub(w.Start)
}

// ValidateWindows checks that windows are sorted by start time and
// non-overlapping. Overlap is a structural inconsistency in the run:
// correlation refuses to silently pick a winner.
func ValidateWindows(windows []PhaseWindow) error {
	for i := 1; i < len(windows); i++ {
		prev, cur := &windows[i-1], &windows[i]
		if cur.Start.Before(prev.Start) {
			return fmt.Errorf("phase windows out of order: %q starts before %q", cur.Phase, prev.Phase)
		}
		if prev.End == nil {
			return fmt.Errorf("phase window %q is still open but %q starts after it", prev.Phase, cur.Phase)
		}
		if cur.Start.Before(*prev.End) {
			return fmt.Errorf("phase windows overlap: %q ends %s after %q starts", prev.Phase, prev.End.Sub(cur.Start), cur.Phase)
		}
	}
	return nil
}

// findWindow locates the window containing ts via binary search over the
// sorted start times. Returns -1 when ts is outside every window; such events
// are excluded from all phase aggregates (gap repair is a separate concern).
func findWindow(windows []PhaseWindow, ts time.Time) int {
	// First window starting after ts.
	i := sort.Search(len(windows), func(i int) bool {
		return windows[i].Start.After(ts)
	})
	if i == 0 {
		return -1
	}
	if windows[i-1].Contains(ts) {
		return i - 1
	}
	return -1
}

// WindowsFromTransitions derives phase windows from the transition log: each
// transition opens its destination phase at its timestamp, closed by the next
// transition. The final phase stays open.
func WindowsFromTransitions(transitions []storage.Transition) []PhaseWindow {
	var windows []PhaseWindow
	for _, t := range transitions {
		start, err := time.Parse(time.RFC3339, t.Timestamp)
		if err != nil {
			logger.Warn().Str("timestamp", t.Timestamp).Msg("Skipping transition with unparseable timestamp")
			continue
		}
		windows = append(windows, PhaseWindow{Phase: t.Phase, Start: start})
	}
	for i := 0; i+1 < len(windows); i++ {
		end := windows[i+1].Start
		windows[i].End = &end
	}
	return windows
}
