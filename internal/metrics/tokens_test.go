package metrics

import (
	"path/filepath"
	"testing"
)

func TestTokenTotals_Add(t *testing.T) {
	total := TokenTotals{Input: 10, Output: 5, AssistantTurns: 1}
	total.Add(TokenTotals{Input: 90, Output: 15, CacheRead: 7, AssistantTurns: 2})

	if total.Input != 100 || total.Output != 20 || total.CacheRead != 7 || total.AssistantTurns != 3 {
		t.Errorf("Add result = %+v", total)
	}
	if total.Combined() != 120 {
		t.Errorf("Combined = %d, want 120", total.Combined())
	}
}

func TestClampTokens(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want uint64
	}{
		{"positive", 42, 42},
		{"zero", 0, 0},
		{"negative clamped", -17, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampTokens(tt.in, "test"); got != tt.want {
				t.Errorf("clampTokens(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadTranscriptUsage_BothSchemas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeLines(t, path, []string{
		// Newer schema: usage nested under message.
		`{"type":"assistant","timestamp":"2025-01-01T10:00:00Z","message":{"usage":{"input_tokens":100,"output_tokens":40,"cache_creation_input_tokens":12}}}`,
		// Older schema: usage directly on the event.
		`{"type":"assistant","timestamp":"2025-01-01T10:01:00Z","usage":{"input_tokens":50,"output_tokens":10}}`,
	})

	records, err := readTranscriptUsage(path)
	if err != nil {
		t.Fatalf("readTranscriptUsage failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Tokens.Input != 100 || records[0].Tokens.CacheCreation != 12 {
		t.Errorf("record 0 = %+v", records[0].Tokens)
	}
	if records[1].Tokens.Input != 50 || records[1].Tokens.Output != 10 {
		t.Errorf("record 1 = %+v", records[1].Tokens)
	}
}

func TestReadTranscriptUsage_FiltersAndTolerates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeLines(t, path, []string{
		`{"type":"user","timestamp":"2025-01-01T10:00:00Z"}`,
		`not json at all`,
		`{"type":"assistant","timestamp":"2025-01-01T10:01:00Z"}`,
		`{"type":"assistant","usage":{"input_tokens":5,"output_tokens":5}}`,
		`{"type":"assistant","timestamp":"garbage","usage":{"input_tokens":5,"output_tokens":5}}`,
		`{"type":"assistant","timestamp":"2025-01-01T10:02:00Z","usage":{"input_tokens":9,"output_tokens":1}}`,
	})

	records, err := readTranscriptUsage(path)
	if err != nil {
		t.Fatalf("readTranscriptUsage failed: %v", err)
	}
	// Only the final line is an assistant event with usage and a parseable
	// timestamp.
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Tokens.Input != 9 {
		t.Errorf("record = %+v", records[0].Tokens)
	}
}

func TestReadTranscriptUsage_NegativeClamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeLines(t, path, []string{
		`{"type":"assistant","timestamp":"2025-01-01T10:00:00Z","usage":{"input_tokens":-100,"output_tokens":40}}`,
	})

	records, err := readTranscriptUsage(path)
	if err != nil {
		t.Fatalf("readTranscriptUsage failed: %v", err)
	}
	if records[0].Tokens.Input != 0 || records[0].Tokens.Output != 40 {
		t.Errorf("negative not clamped: %+v", records[0].Tokens)
	}
}

func TestReadTranscriptUsage_MissingFile(t *testing.T) {
	if _, err := readTranscriptUsage(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}
