package meter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/wattline/wattline/pkg/history"
	"github.com/wattline/wattline/pkg/lockstore"
)

func newTestRecorder(t *testing.T) (*Recorder, *history.Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	storePath := filepath.Join(dir, "daily.json")
	ledger := history.New(filepath.Join(dir, "history.jsonl"))
	return NewRecorder(storePath, 5*time.Second, ledger), ledger, storePath
}

func TestRecordPersistsAcrossInvocations(t *testing.T) {
	r, _, _ := newTestRecorder(t)

	st, err := r.Record(obs("A", 100, 50, 10, 0), testNow)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if st.Daily.Input != 100 {
		t.Fatalf("expected input 100, got %d", st.Daily.Input)
	}

	// Fresh Recorder simulates a fresh process sharing the same files.
	r2 := NewRecorder(r.storePath, r.timeout, r.ledger)
	st, err = r2.Record(obs("A", 150, 70, 0, 0), testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if st.Daily.Input != 150 || st.Daily.Output != 70 {
		t.Fatalf("expected accumulated totals {150 70}, got %+v", st.Daily.TokenCounts)
	}
}

func TestRecordRolloverArchivesExactlyOnce(t *testing.T) {
	r, ledger, _ := newTestRecorder(t)
	day1 := time.Date(2026, 2, 20, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 21, 1, 0, 0, 0, time.UTC)

	if _, err := r.Record(obs("A", 100, 50, 10, 5), day1); err != nil {
		t.Fatalf("day1 record: %v", err)
	}
	st, err := r.Record(obs("B", 30, 10, 0, 0), day2)
	if err != nil {
		t.Fatalf("day2 record: %v", err)
	}
	if st.PendingArchive != nil {
		t.Fatalf("expected pending archive flushed, got %+v", st.PendingArchive)
	}
	if st.Daily.Date != "2026-02-21" || st.Daily.Input != 30 {
		t.Fatalf("unexpected live bucket: %+v", st.Daily)
	}

	entries, err := ledger.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	want := history.Entry{Date: "2026-02-20", Input: 100, Output: 50, CacheRead: 10, CacheWrite: 5, Sessions: 1}
	if entries[0] != want {
		t.Fatalf("unexpected ledger entry: %+v", entries[0])
	}

	// Writers racing past the boundary: everyone after the first sees
	// the advanced bucket and must not seal again.
	if _, err := r.Record(obs("C", 5, 1, 0, 0), day2.Add(time.Minute)); err != nil {
		t.Fatalf("post-rollover record: %v", err)
	}
	entries, err = ledger.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("rollover archived more than once: %d entries", len(entries))
	}
}

func TestRecordRecoversPendingArchive(t *testing.T) {
	r, ledger, storePath := newTestRecorder(t)

	// A crash left the marker committed but the ledger line unwritten.
	crashed := NewState("2026-02-21")
	crashed.PendingArchive = &history.Entry{Date: "2026-02-20", Input: 70, Output: 30, Sessions: 2}
	data, err := json.Marshal(crashed)
	if err != nil {
		t.Fatalf("marshal seed state: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(storePath, data, 0o600); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	day2 := time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)
	st, err := r.Record(obs("A", 10, 5, 0, 0), day2)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if st.PendingArchive != nil {
		t.Fatal("expected pending archive cleared after recovery")
	}
	entries, err := ledger.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 || entries[0].Date != "2026-02-20" || entries[0].Input != 70 {
		t.Fatalf("expected recovered ledger entry, got %+v", entries)
	}
}

func TestRecordPendingArchiveNotDuplicated(t *testing.T) {
	r, ledger, storePath := newTestRecorder(t)

	// Crash happened after the append but before the cleared marker was
	// committed: the line exists and must not be written twice.
	sealed := history.Entry{Date: "2026-02-20", Input: 70, Output: 30, Sessions: 2}
	if err := ledger.Append(sealed); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	crashed := NewState("2026-02-21")
	crashed.PendingArchive = &sealed
	data, _ := json.Marshal(crashed)
	if err := os.WriteFile(storePath, data, 0o600); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	day2 := time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)
	st, err := r.Record(obs("A", 10, 5, 0, 0), day2)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if st.PendingArchive != nil {
		t.Fatal("expected pending archive cleared")
	}
	entries, err := ledger.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("pending archive appended twice: %+v", entries)
	}
}

func TestConcurrentWritersSumExactly(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	const writers = 10
	const perWriterTokens = 37

	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sid := fmt.Sprintf("session-%d", id)
			rec := NewRecorder(r.storePath, r.timeout, r.ledger)
			if _, err := rec.Record(obs(sid, perWriterTokens, 0, 0, 0), testNow); err != nil {
				errCh <- err
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent record: %v", err)
	}

	st := r.Snapshot(testNow)
	if st.Daily.Input != writers*perWriterTokens {
		t.Fatalf("lost updates: expected %d, got %d", writers*perWriterTokens, st.Daily.Input)
	}
	if st.Daily.SessionCount != writers {
		t.Fatalf("expected %d sessions, got %d", writers, st.Daily.SessionCount)
	}
}

func TestRecordLockTimeoutFallsBackToSnapshot(t *testing.T) {
	r, _, storePath := newTestRecorder(t)
	if _, err := r.Record(obs("A", 100, 50, 0, 0), testNow); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	holder := flock.New(storePath + ".lock")
	if err := holder.Lock(); err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer holder.Close()

	blocked := NewRecorder(storePath, 150*time.Millisecond, r.ledger)
	_, err := blocked.Record(obs("A", 200, 90, 0, 0), testNow.Add(time.Minute))
	if !errors.Is(err, lockstore.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	// Best-effort display falls back to the last committed totals.
	snap := blocked.Snapshot(testNow.Add(time.Minute))
	if snap.Daily.Input != 100 || snap.Daily.Output != 50 {
		t.Fatalf("unexpected snapshot fallback: %+v", snap.Daily.TokenCounts)
	}
}
