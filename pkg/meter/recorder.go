package meter

import (
	"time"

	log "github.com/charmbracelet/log"

	"github.com/wattline/wattline/pkg/history"
	"github.com/wattline/wattline/pkg/lockstore"
)

// Recorder runs the full per-invocation cycle against the shared store:
// acquire the lock, recover any pending archive, apply the observation,
// flush a fresh seal, commit. It owns no in-memory state; every
// invocation is a fresh process and the store file is the only truth.
type Recorder struct {
	storePath string
	timeout   time.Duration
	ledger    *history.Ledger
}

func NewRecorder(storePath string, timeout time.Duration, ledger *history.Ledger) *Recorder {
	return &Recorder{storePath: storePath, timeout: timeout, ledger: ledger}
}

// Record applies obs to the store under the lock and returns the
// committed state. On lockstore.ErrLockTimeout nothing is persisted and
// the caller should fall back to Snapshot for display.
func (r *Recorder) Record(obs Observation, now time.Time) (StoreState, error) {
	today := now.Format(DateLayout)
	return lockstore.WithLock(r.storePath, r.timeout,
		func() StoreState { return NewState(today) },
		func(s *StoreState) error {
			// Leftover marker from a crash between seal and append.
			r.flushPending(s)
			s.Apply(obs, today, now)
			r.flushPending(s)
			return nil
		})
}

// Snapshot reads the last committed state without locking; used to keep
// rendering alive when the lock cannot be acquired in time.
func (r *Recorder) Snapshot(now time.Time) StoreState {
	today := now.Format(DateLayout)
	return lockstore.ReadSnapshot(r.storePath, func() StoreState { return NewState(today) })
}

// flushPending completes the seal handshake: append the marked entry to
// the ledger, then clear the marker. The ledger is consulted first so a
// crash after append but before the cleared marker was committed does
// not produce a second line for the same date. On append failure the
// marker stays set and the next invocation retries.
func (r *Recorder) flushPending(s *StoreState) {
	if s.PendingArchive == nil {
		return
	}
	entry := *s.PendingArchive
	exists, err := r.ledger.Has(entry.Date)
	if err != nil {
		log.Warn("history ledger unreadable, keeping pending archive", "date", entry.Date, "error", err)
		return
	}
	if exists {
		s.PendingArchive = nil
		return
	}
	if err := r.ledger.Append(entry); err != nil {
		log.Warn("history append failed, will retry next invocation", "date", entry.Date, "error", err)
		return
	}
	s.PendingArchive = nil
}
