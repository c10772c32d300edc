// Package debuglog captures raw input payloads for offline analysis
// when WATTLINE_DEBUG=1. Capture is append-only and strictly
// best-effort: it never alters store semantics and its failures are
// only ever logged.
package debuglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const EnvFlag = "WATTLINE_DEBUG"

type entry struct {
	ID  string          `json:"id"`
	TS  string          `json:"ts"`
	Raw json.RawMessage `json:"raw"`
}

func Enabled() bool {
	return os.Getenv(EnvFlag) == "1"
}

// Capture appends one timestamped raw payload line to path.
func Capture(path string, raw []byte, now time.Time) {
	if !json.Valid(raw) {
		// Preserve unparseable input too; that is when capture matters most.
		quoted, err := json.Marshal(string(raw))
		if err != nil {
			return
		}
		raw = quoted
	}
	line, err := json.Marshal(entry{
		ID:  uuid.NewString(),
		TS:  now.UTC().Format(time.RFC3339Nano),
		Raw: raw,
	})
	if err != nil {
		log.Debug("debug capture encode failed", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.Debug("debug capture dir failed", "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		log.Debug("debug capture open failed", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Debug("debug capture write failed", "error", err)
	}
}
