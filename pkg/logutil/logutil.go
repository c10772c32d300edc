// Package logutil configures the process logger. Everything goes to
// stderr: stdout belongs exclusively to the rendered status line, and no
// diagnostic may ever leak into it.
package logutil

import (
	"fmt"
	"os"
	"strings"

	log "github.com/charmbracelet/log"
)

func Configure(levelRaw string) error {
	levelRaw = strings.TrimSpace(levelRaw)
	if levelRaw == "" {
		levelRaw = "warn"
	}
	level, err := parseConfiguredLevel(levelRaw)
	if err != nil {
		return err
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetReportTimestamp(false)
	return nil
}

func parseConfiguredLevel(levelRaw string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelRaw)) {
	case "trace", "trac":
		// The logger has no native trace enum; map trace to most verbose mode.
		return log.DebugLevel, nil
	default:
		level, err := log.ParseLevel(levelRaw)
		if err != nil {
			return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
		}
		return level, nil
	}
}
