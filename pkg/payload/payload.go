// Package payload defines the JSON document each invocation reads from
// stdin. Every field is optional on the wire; absent or malformed values
// degrade to zero contributions rather than errors so a bad payload can
// never break the status line.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/charmbracelet/log"
)

var ErrMalformed = errors.New("malformed payload")

const (
	DefaultSessionID = "unknown"
	DefaultModelName = "?"
)

type Payload struct {
	SessionID     string        `json:"session_id"`
	Model         Model         `json:"model"`
	ContextWindow ContextWindow `json:"context_window"`
}

type Model struct {
	DisplayName string `json:"display_name"`
}

// ContextWindow carries the session-cumulative counters plus the
// per-call cache snapshot. TotalInputTokens excludes cached tokens
// upstream, so it is already fresh-input only.
type ContextWindow struct {
	UsedPercentage    *float64      `json:"used_percentage"`
	TotalInputTokens  int64         `json:"total_input_tokens"`
	TotalOutputTokens int64         `json:"total_output_tokens"`
	CurrentUsage      *CurrentUsage `json:"current_usage"`
}

// CurrentUsage is the most-recently-completed call only. These two are
// NOT cumulative; the delta tracker accumulates them across calls.
type CurrentUsage struct {
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// Decode reads one payload from r. The raw bytes are returned for the
// debug capture regardless of parse success. A decode failure returns
// ErrMalformed along with a zeroed, normalized payload the caller can
// still render from.
func Decode(r io.Reader) (Payload, []byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return normalize(Payload{}), raw, fmt.Errorf("%w: read stdin: %v", ErrMalformed, err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return normalize(Payload{}), raw, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return normalize(p), raw, nil
}

// normalize fills documented defaults and clamps negative counters to
// zero. Counters are cumulative and never legitimately negative.
func normalize(p Payload) Payload {
	if strings.TrimSpace(p.SessionID) == "" {
		p.SessionID = DefaultSessionID
	}
	if strings.TrimSpace(p.Model.DisplayName) == "" {
		p.Model.DisplayName = DefaultModelName
	}
	p.ContextWindow.TotalInputTokens = clampCounter("total_input_tokens", p.ContextWindow.TotalInputTokens)
	p.ContextWindow.TotalOutputTokens = clampCounter("total_output_tokens", p.ContextWindow.TotalOutputTokens)
	if cu := p.ContextWindow.CurrentUsage; cu != nil {
		cu.CacheReadInputTokens = clampCounter("cache_read_input_tokens", cu.CacheReadInputTokens)
		cu.CacheCreationInputTokens = clampCounter("cache_creation_input_tokens", cu.CacheCreationInputTokens)
	}
	return p
}

func clampCounter(name string, v int64) int64 {
	if v < 0 {
		log.Warn("negative counter in payload treated as zero", "field", name, "value", v)
		return 0
	}
	return v
}

// CacheRead returns the per-call cache read snapshot, zero when the
// current_usage block is absent.
func (p Payload) CacheRead() int64 {
	if p.ContextWindow.CurrentUsage == nil {
		return 0
	}
	return p.ContextWindow.CurrentUsage.CacheReadInputTokens
}

// CacheWrite returns the per-call cache creation snapshot, zero when the
// current_usage block is absent.
func (p Payload) CacheWrite() int64 {
	if p.ContextWindow.CurrentUsage == nil {
		return 0
	}
	return p.ContextWindow.CurrentUsage.CacheCreationInputTokens
}
