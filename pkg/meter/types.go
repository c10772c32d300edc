// Package meter is the concurrent accumulation engine: it derives
// marginal token deltas from each session's cumulative counters, folds
// them into the shared daily bucket, and seals finished days into the
// history ledger exactly once. All mutation happens inside one locked
// read-modify-write cycle per invocation, so concurrent invocations
// never lose each other's deltas.
package meter

import (
	"time"

	"github.com/wattline/wattline/pkg/history"
)

// DateLayout is the calendar-date key used for buckets and ledger
// entries. ISO layout keeps lexical order chronological.
const DateLayout = "2006-01-02"

// TokenCounts groups the four metered categories. It serves both as a
// per-invocation delta and as a running total; values are never
// negative.
type TokenCounts struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cache_read"`
	CacheWrite int64 `json:"cache_write"`
}

func (c *TokenCounts) Add(d TokenCounts) {
	c.Input += d.Input
	c.Output += d.Output
	c.CacheRead += d.CacheRead
	c.CacheWrite += d.CacheWrite
}

func (c TokenCounts) Total() int64 {
	return c.Input + c.Output + c.CacheRead + c.CacheWrite
}

func (c TokenCounts) IsZero() bool {
	return c == TokenCounts{}
}

// SessionState is the last-observed counter snapshot for one session.
// The cumulative pair detects counter advancement; the cache pair is the
// last per-call snapshot, kept so a fully-cached call (flat cumulative
// input) is still recognized as new work.
type SessionState struct {
	LastFresh      int64 `json:"last_fresh"`
	LastOutput     int64 `json:"last_output"`
	LastCacheRead  int64 `json:"last_cache_read,omitempty"`
	LastCacheWrite int64 `json:"last_cache_write,omitempty"`
}

// DailyTotals is the live bucket for the current calendar date.
type DailyTotals struct {
	Date string `json:"date"`
	TokenCounts
	SessionCount int       `json:"session_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StoreState is the full persisted unit guarded by the store lock.
// PendingArchive is the seal-in-progress marker: it is committed in the
// same atomic write as the reset bucket, so a crash between sealing and
// ledger append is recovered on the next invocation.
type StoreState struct {
	Sessions       map[string]SessionState `json:"sessions"`
	Daily          DailyTotals             `json:"daily"`
	PendingArchive *history.Entry          `json:"pending_archive,omitempty"`
}

// NewState returns an empty store opened on the given date.
func NewState(today string) StoreState {
	return StoreState{
		Sessions: map[string]SessionState{},
		Daily:    DailyTotals{Date: today},
	}
}

// Observation is one invocation's view of a session, already normalized
// by the payload layer (counters non-negative).
type Observation struct {
	SessionID  string
	FreshTotal int64 // cumulative fresh-input tokens for the session
	OutTotal   int64 // cumulative output tokens for the session
	CacheRead  int64 // most recent call only, not cumulative
	CacheWrite int64 // most recent call only, not cumulative
}
