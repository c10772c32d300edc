package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wattline.toml")
	content := "data_dir = \"" + filepath.Join(dir, "data") + "\"\n\n[quota]\nenabled = false\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func invokeStatus(t *testing.T, cfgPath, stdin string) string {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader(stdin))
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	runStatus(cmd, cfgPath)
	return out.String()
}

func TestStatusLineEndToEnd(t *testing.T) {
	cfgPath := writeTestConfig(t)

	line := invokeStatus(t, cfgPath, `{
		"session_id": "s1",
		"model": {"display_name": "Opus"},
		"context_window": {"used_percentage": 10, "total_input_tokens": 1000, "total_output_tokens": 0}
	}`)
	want := "Opus | Ctx:10% | D:1k ~500mWh | W:1k ~500mWh | M:1k ~500mWh"
	if line != want {
		t.Fatalf("unexpected status line:\n got %q\nwant %q", line, want)
	}

	// A second invocation shares the same store and accumulates.
	line = invokeStatus(t, cfgPath, `{
		"session_id": "s1",
		"model": {"display_name": "Opus"},
		"context_window": {"used_percentage": 12, "total_input_tokens": 2000, "total_output_tokens": 0}
	}`)
	want = "Opus | Ctx:12% | D:2k ~1Wh | W:2k ~1Wh | M:2k ~1Wh"
	if line != want {
		t.Fatalf("unexpected accumulated line:\n got %q\nwant %q", line, want)
	}
}

func TestStatusLineSurvivesGarbageInput(t *testing.T) {
	cfgPath := writeTestConfig(t)
	line := invokeStatus(t, cfgPath, `%%% not json %%%`)
	want := "? | D:0 ~0 | W:0 ~0 | M:0 ~0"
	if line != want {
		t.Fatalf("expected fallback line, got %q", line)
	}
}
