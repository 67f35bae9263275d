package metrics

import (
	"testing"
	"time"

	"phasewatch/internal/storage"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", s, err)
	}
	return v
}

func tsp(t *testing.T, s string) *time.Time {
	t.Helper()
	v := ts(t, s)
	return &v
}

func TestPhaseWindow_Contains(t *testing.T) {
	w := PhaseWindow{
		Phase: "code",
		Start: ts(t, "2025-01-01T10:00:00Z"),
		End:   tsp(t, "2025-01-01T11:00:00Z"),
	}

	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"before start", "2025-01-01T09:59:59Z", false},
		{"at start boundary", "2025-01-01T10:00:00Z", true},
		{"inside", "2025-01-01T10:30:00Z", true},
		{"at end boundary", "2025-01-01T11:00:00Z", false},
		{"after end", "2025-01-01T11:00:01Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(ts(t, tt.at)); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestPhaseWindow_OpenWindowContains(t *testing.T) {
	w := PhaseWindow{Phase: "code", Start: ts(t, "2025-01-01T10:00:00Z")}

	if !w.Contains(ts(t, "2025-06-01T00:00:00Z")) {
		t.Error("open window should contain any later timestamp")
	}
	if w.Contains(ts(t, "2025-01-01T09:00:00Z")) {
		t.Error("open window should not contain earlier timestamps")
	}
}

func TestValidateWindows(t *testing.T) {
	tests := []struct {
		name    string
		windows []PhaseWindow
		wantErr bool
	}{
		{
			name: "valid sequence with open tail",
			windows: []PhaseWindow{
				{Phase: "spec", Start: ts(t, "2025-01-01T10:00:00Z"), End: tsp(t, "2025-01-01T10:30:00Z")},
				{Phase: "code", Start: ts(t, "2025-01-01T10:30:00Z")},
			},
		},
		{
			name: "overlap rejected",
			windows: []PhaseWindow{
				{Phase: "spec", Start: ts(t, "2025-01-01T10:00:00Z"), End: tsp(t, "2025-01-01T10:45:00Z")},
				{Phase: "code", Start: ts(t, "2025-01-01T10:30:00Z"), End: tsp(t, "2025-01-01T11:00:00Z")},
			},
			wantErr: true,
		},
		{
			name: "out of order rejected",
			windows: []PhaseWindow{
				{Phase: "code", Start: ts(t, "2025-01-01T11:00:00Z"), End: tsp(t, "2025-01-01T12:00:00Z")},
				{Phase: "spec", Start: ts(t, "2025-01-01T10:00:00Z"), End: tsp(t, "2025-01-01T10:30:00Z")},
			},
			wantErr: true,
		},
		{
			name: "open window before another rejected",
			windows: []PhaseWindow{
				{Phase: "spec", Start: ts(t, "2025-01-01T10:00:00Z")},
				{Phase: "code", Start: ts(t, "2025-01-01T10:30:00Z")},
			},
			wantErr: true,
		},
		{name: "empty is valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWindows(tt.windows)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWindows() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindWindow(t *testing.T) {
	windows := []PhaseWindow{
		{Phase: "spec", Start: ts(t, "2025-01-01T10:00:00Z"), End: tsp(t, "2025-01-01T10:30:00Z")},
		{Phase: "code", Start: ts(t, "2025-01-01T10:30:00Z"), End: tsp(t, "2025-01-01T11:00:00Z")},
		{Phase: "review", Start: ts(t, "2025-01-01T11:30:00Z")},
	}

	tests := []struct {
		name string
		at   string
		want int
	}{
		{"before everything", "2025-01-01T09:00:00Z", -1},
		{"first window", "2025-01-01T10:10:00Z", 0},
		{"boundary belongs to window it opens", "2025-01-01T10:30:00Z", 1},
		{"gap between windows", "2025-01-01T11:10:00Z", -1},
		{"open final window", "2025-01-01T12:00:00Z", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findWindow(windows, ts(t, tt.at)); got != tt.want {
				t.Errorf("findWindow(%s) = %d, want %d", tt.at, got, tt.want)
			}
		})
	}
}

func TestWindowsFromTransitions(t *testing.T) {
	transitions := []storage.Transition{
		{Timestamp: "2025-01-01T10:00:00Z", ToNode: "spec", Phase: "spec"},
		{Timestamp: "not-a-timestamp", ToNode: "junk", Phase: "junk"},
		{Timestamp: "2025-01-01T10:30:00Z", ToNode: "code", Phase: "code"},
	}

	windows := WindowsFromTransitions(transitions)
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2 (bad transition skipped)", len(windows))
	}
	if windows[0].Phase != "spec" || windows[0].End == nil {
		t.Errorf("first window = %+v, want closed spec window", windows[0])
	}
	if windows[1].Phase != "code" || windows[1].End != nil {
		t.Errorf("second window = %+v, want open code window", windows[1])
	}
}
