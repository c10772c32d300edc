package meter

import (
	"time"

	log "github.com/charmbracelet/log"

	"github.com/wattline/wattline/pkg/history"
)

// ApplyResult reports what one observation did to the store.
type ApplyResult struct {
	Delta  TokenCounts
	Resync bool
	Rolled bool
}

// Apply folds one observation into the store for the given wall-clock
// date. When the date has advanced past the live bucket, the bucket is
// sealed into PendingArchive and reset before the new delta lands — the
// whole sequence runs inside one locked critical section, so only the
// first invocation past the boundary ever seals a given day. A date
// behind the bucket is clock skew: folded into the current bucket with a
// warning, never a second past-dated bucket.
func (s *StoreState) Apply(obs Observation, today string, now time.Time) ApplyResult {
	if s.Sessions == nil {
		s.Sessions = map[string]SessionState{}
	}

	res := ApplyResult{}
	switch {
	case s.Daily.Date == "":
		s.Daily.Date = today
	case today > s.Daily.Date:
		s.seal()
		s.Sessions = map[string]SessionState{}
		s.Daily = DailyTotals{Date: today}
		res.Rolled = true
	case today < s.Daily.Date:
		log.Warn("wall clock behind live bucket, folding into current day",
			"today", today, "bucket", s.Daily.Date)
	}

	prev, seen := s.Sessions[obs.SessionID]
	delta, next, resync := deriveDelta(prev, obs)
	if resync {
		log.Warn("cumulative counter went backward, resynced session baseline",
			"session", obs.SessionID,
			"fresh_total", obs.FreshTotal, "output_total", obs.OutTotal)
	}
	s.Sessions[obs.SessionID] = next
	s.Daily.Add(delta)
	if !seen {
		s.Daily.SessionCount++
	}
	s.Daily.UpdatedAt = now.UTC()

	res.Delta = delta
	res.Resync = resync
	return res
}

// seal marks the live bucket for archival. Empty buckets are not worth a
// ledger line and are dropped silently, matching the append-only ledger
// holding only days with activity.
func (s *StoreState) seal() {
	if s.Daily.Input+s.Daily.Output == 0 {
		return
	}
	if s.PendingArchive != nil {
		log.Error("unflushed pending archive replaced at rollover, entry lost",
			"lost_date", s.PendingArchive.Date, "sealed_date", s.Daily.Date)
	}
	s.PendingArchive = &history.Entry{
		Date:       s.Daily.Date,
		Input:      s.Daily.Input,
		Output:     s.Daily.Output,
		CacheRead:  s.Daily.CacheRead,
		CacheWrite: s.Daily.CacheWrite,
		Sessions:   s.Daily.SessionCount,
	}
}
