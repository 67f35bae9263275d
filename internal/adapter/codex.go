package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"phasewatch/internal/event"
)

// fallbackCodexModel is substituted when no model metadata can be found
// anywhere in the payload. Legacy Codex session files omit it entirely.
const fallbackCodexModel = "gpt-5"

// Codex normalizes OpenAI Codex session events. Codex logs two relevant
// record types to its session JSONL:
//
//   - turn_context: carries the current model, emits no canonical event
//   - event_msg with payload.type == "token_count": token usage
//
// Token usage may arrive as per-turn readings (last_token_usage) or as
// cumulative session totals (total_token_usage). Cumulative totals are
// converted to deltas against the previous reading for the same session; a
// reading lower than the previous one means the session restarted, in which
// case the new cumulative values are taken as the delta baseline instead of
// underflowing.
type Codex struct {
	sessions map[string]*codexSession
}

type codexSession struct {
	model         string
	modelFallback bool
	prevTotals    *codexUsage
}

type codexUsage struct {
	Input       uint64
	CachedInput uint64
	Output      uint64
	Reasoning   uint64
	Total       uint64
}

// NewCodex returns the Codex adapter.
func NewCodex() *Codex {
	return &Codex{sessions: make(map[string]*codexSession)}
}

func (a *Codex) Name() string {
	return "codex"
}

func (a *Codex) Detect() bool {
	if os.Getenv("CODEX_HOME") != "" {
		return true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(home, ".codex", "sessions"))
	return err == nil && info.IsDir()
}

func (a *Codex) Normalize(raw json.RawMessage) (*event.CanonicalEvent, error) {
	var rec struct {
		Type      string          `json:"type"`
		Timestamp string          `json:"timestamp"`
		SessionID string          `json:"session_id"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("expected JSON object: %w", err)
	}
	if rec.Type == "" {
		return nil, fmt.Errorf("missing type field")
	}
	if rec.Timestamp == "" {
		return nil, fmt.Errorf("missing timestamp field")
	}

	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = "codex-session"
	}
	state := a.sessions[sessionID]
	if state == nil {
		state = &codexSession{}
		a.sessions[sessionID] = state
	}

	var payload map[string]any
	if len(rec.Payload) > 0 {
		// A malformed payload is treated as absent, not fatal.
		_ = json.Unmarshal(rec.Payload, &payload)
	}

	switch rec.Type {
	case "turn_context":
		if model := extractCodexModel(payload); model != "" {
			state.model = model
			state.modelFallback = false
		}
		return nil, nil

	case "event_msg":
		if payload == nil {
			return nil, fmt.Errorf("missing payload field")
		}
		if t, _ := payload["type"].(string); t != "token_count" {
			return nil, nil
		}
		return a.normalizeTokenCount(rec.Timestamp, sessionID, state, payload)

	default:
		return nil, nil
	}
}

func (a *Codex) normalizeTokenCount(timestamp, sessionID string, state *codexSession, payload map[string]any) (*event.CanonicalEvent, error) {
	info, _ := payload["info"].(map[string]any)

	last := parseCodexUsage(mapValue(info, "last_token_usage"))
	total := parseCodexUsage(mapValue(info, "total_token_usage"))

	// Prefer the per-turn reading; fall back to a delta of cumulative totals.
	usage := last
	if usage == nil && total != nil {
		usage = deltaCodexUsage(total, state.prevTotals)
	}
	if total != nil {
		state.prevTotals = total
	}
	if usage == nil {
		return nil, nil
	}

	// No tokens moved: drop rather than emit a zero-value event.
	if usage.Input == 0 && usage.CachedInput == 0 && usage.Output == 0 && usage.Reasoning == 0 {
		return nil, nil
	}

	model, fallback := a.resolveModel(state, payload)

	resp, err := json.Marshal(map[string]any{
		"input_tokens":            usage.Input,
		"cached_input_tokens":     usage.CachedInput,
		"output_tokens":           usage.Output,
		"reasoning_output_tokens": usage.Reasoning,
		"total_tokens":            usage.Total,
		"model":                   model,
	})
	if err != nil {
		return nil, err
	}

	modelRaw, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}

	return &event.CanonicalEvent{
		Timestamp:    timestamp,
		SessionID:    sessionID,
		Type:         event.PostToolUse,
		ToolName:     "Codex",
		ToolResponse: resp,
		Adapter:      a.Name(),
		FallbackUsed: fallback,
		Extra:        map[string]json.RawMessage{"model": modelRaw},
	}, nil
}

// resolveModel applies the model-name cascade: payload locations first, then
// the model remembered from earlier turn context, then the hardcoded
// fallback. This never fails; missing metadata degrades, it does not error.
func (a *Codex) resolveModel(state *codexSession, payload map[string]any) (string, bool) {
	if model := extractCodexModel(payload); model != "" {
		state.model = model
		state.modelFallback = false
		return model, false
	}
	if state.model != "" {
		return state.model, state.modelFallback
	}
	state.model = fallbackCodexModel
	state.modelFallback = true
	return fallbackCodexModel, true
}

// extractCodexModel checks the known payload locations in priority order.
func extractCodexModel(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	info, _ := payload["info"].(map[string]any)

	candidates := []any{
		mapValue(info, "model"),
		mapValue(info, "model_name"),
		mapValue(mapValue(info, "metadata"), "model"),
		payload["model"],
		mapValue(mapValue(payload, "metadata"), "model"),
	}
	for _, c := range candidates {
		if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func parseCodexUsage(v any) *codexUsage {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	u := &codexUsage{
		Input:     uintValue(obj["input_tokens"]),
		Output:    uintValue(obj["output_tokens"]),
		Reasoning: uintValue(obj["reasoning_output_tokens"]),
		Total:     uintValue(obj["total_tokens"]),
	}

	// Field alias: newer files say cached_input_tokens, older ones
	// cache_read_input_tokens.
	u.CachedInput = uintValue(obj["cached_input_tokens"])
	if u.CachedInput == 0 {
		u.CachedInput = uintValue(obj["cache_read_input_tokens"])
	}

	// Legacy records omit total_tokens.
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}

	return u
}

// deltaCodexUsage converts a cumulative reading into a per-event delta. When
// any counter goes backwards the session restarted, so the new reading itself
// becomes the delta.
func deltaCodexUsage(current, previous *codexUsage) *codexUsage {
	if previous == nil {
		return &codexUsage{
			Input:       current.Input,
			CachedInput: current.CachedInput,
			Output:      current.Output,
			Reasoning:   current.Reasoning,
			Total:       current.Total,
		}
	}
	if current.Input < previous.Input || current.Output < previous.Output ||
		current.CachedInput < previous.CachedInput || current.Reasoning < previous.Reasoning {
		return &codexUsage{
			Input:       current.Input,
			CachedInput: current.CachedInput,
			Output:      current.Output,
			Reasoning:   current.Reasoning,
			Total:       current.Total,
		}
	}
	return &codexUsage{
		Input:       current.Input - previous.Input,
		CachedInput: current.CachedInput - previous.CachedInput,
		Output:      current.Output - previous.Output,
		Reasoning:   current.Reasoning - previous.Reasoning,
		Total:       current.Total - previous.Total,
	}
}

func mapValue(v any, key string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func uintValue(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0
		}
		return uint64(i)
	default:
		return 0
	}
}
