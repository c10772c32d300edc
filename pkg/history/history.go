// Package history maintains the append-only per-day ledger. One JSON
// object per line, never rewritten; weekly and monthly roll-ups are
// computed by summing date ranges over it. Dates are ISO (2006-01-02)
// strings, so lexical comparison is chronological.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/charmbracelet/log"
)

// Entry is the immutable snapshot of one sealed day.
type Entry struct {
	Date       string `json:"date"`
	Input      int64  `json:"input"`
	Output     int64  `json:"output"`
	CacheRead  int64  `json:"cache_read"`
	CacheWrite int64  `json:"cache_write"`
	Sessions   int    `json:"sessions"`
}

// Totals is the sum of a range of entries.
type Totals struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
	Days       int
}

func (t *Totals) add(e Entry) {
	t.Input += e.Input
	t.Output += e.Output
	t.CacheRead += e.CacheRead
	t.CacheWrite += e.CacheWrite
	t.Days++
}

type Ledger struct {
	path string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string { return l.path }

// Append writes one entry as a single line. The file is opened in append
// mode with owner-only permissions and existing lines are never touched.
func (l *Ledger) Append(e Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("mkdir ledger dir: %w", err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Has reports whether any entry for the given date exists. Used to keep
// the pending-archive retry idempotent across crashes.
func (l *Ledger) Has(date string) (bool, error) {
	found := false
	err := l.scan(func(e Entry) {
		if e.Date == date {
			found = true
		}
	})
	return found, err
}

// Tail returns the n most recent entries in file order.
func (l *Ledger) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []Entry
	err := l.scan(func(e Entry) {
		out = append(out, e)
		if len(out) > n {
			out = out[1:]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumRange sums all entries whose date falls within [from, to],
// inclusive on both ends.
func (l *Ledger) SumRange(from, to string) (Totals, error) {
	var t Totals
	err := l.scan(func(e Entry) {
		if e.Date >= from && e.Date <= to {
			t.add(e)
		}
	})
	return t, err
}

// scan walks the ledger top to bottom. Malformed lines are skipped with
// a warning; a missing ledger is an empty one.
func (l *Ledger) scan(fn func(Entry)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Warn("skipping malformed ledger line", "path", l.path, "error", err)
			continue
		}
		fn(e)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	return nil
}
