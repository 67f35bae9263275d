package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"phasewatch/internal/logger"
)

// TokenTotals are non-negative counters accumulated with clamped arithmetic:
// a contribution that would drive a counter negative is clamped to zero and
// logged, never allowed to underflow.
type TokenTotals struct {
	Input          uint64 `json:"input"`
	Output         uint64 `json:"output"`
	CacheRead      uint64 `json:"cache_read"`
	CacheCreation  uint64 `json:"cache_creation"`
	AssistantTurns int    `json:"assistant_turns"`
}

// Add accumulates another total into t.
func (t *TokenTotals) Add(other TokenTotals) {
	t.Input += other.Input
	t.Output += other.Output
	t.CacheRead += other.CacheRead
	t.CacheCreation += other.CacheCreation
	t.AssistantTurns += other.AssistantTurns
}

// Combined returns input + output, the quantity token budget rules meter.
func (t *TokenTotals) Combined() uint64 {
	return t.Input + t.Output
}

// clampTokens converts a raw JSON number to a counter contribution, clamping
// negatives to zero with a warning.
func clampTokens(v int64, field string) uint64 {
	if v < 0 {
		logger.Warn().Int64("value", v).Str("field", field).Msg("Clamping negative token count to zero")
		return 0
	}
	return uint64(v)
}

// transcriptUsage is a token usage record from an agent transcript.
type transcriptUsage struct {
	InputTokens              int64  `json:"input_tokens"`
	OutputTokens             int64  `json:"output_tokens"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int64 `json:"cache_read_input_tokens"`
}

// transcriptEvent handles both transcript schema generations: the older
// format puts usage directly on the event, the newer one nests it under
// message.usage.
type transcriptEvent struct {
	Type      string           `json:"type"`
	Timestamp string           `json:"timestamp"`
	Usage     *transcriptUsage `json:"usage"`
	Message   *struct {
		Usage *transcriptUsage `json:"usage"`
	} `json:"message"`
}

func (e *transcriptEvent) usage() *transcriptUsage {
	if e.Usage != nil {
		return e.Usage
	}
	if e.Message != nil {
		return e.Message.Usage
	}
	return nil
}

// usageRecord is one timestamped token reading extracted from a transcript.
type usageRecord struct {
	Timestamp time.Time
	Tokens    TokenTotals
}

// readTranscriptUsage extracts all assistant token usage records from one
// transcript file. Unparseable lines are skipped with a warning; records
// without a timestamp cannot be correlated to a phase and are dropped.
func readTranscriptUsage(path string) ([]usageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []usageRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev transcriptEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warn().
				Str("file", filepath.Base(path)).
				Int("line", lineNum).
				Err(err).
				Msg("Skipping unparseable transcript line")
			continue
		}
		if ev.Type != "assistant" {
			continue
		}
		usage := ev.usage()
		if usage == nil || ev.Timestamp == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, ev.Timestamp)
		if err != nil {
			logger.Warn().
				Str("file", filepath.Base(path)).
				Int("line", lineNum).
				Msg("Skipping transcript usage with unparseable timestamp")
			continue
		}

		rec := usageRecord{
			Timestamp: ts,
			Tokens: TokenTotals{
				Input:          clampTokens(usage.InputTokens, "input_tokens"),
				Output:         clampTokens(usage.OutputTokens, "output_tokens"),
				AssistantTurns: 1,
			},
		}
		if usage.CacheCreationInputTokens != nil {
			rec.Tokens.CacheCreation = clampTokens(*usage.CacheCreationInputTokens, "cache_creation_input_tokens")
		}
		if usage.CacheReadInputTokens != nil {
			rec.Tokens.CacheRead = clampTokens(*usage.CacheReadInputTokens, "cache_read_input_tokens")
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return records, nil
}
