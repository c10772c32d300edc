package history

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// ExportSnapshot writes a zstd-compressed copy of the ledger to dst for
// offline analysis. The ledger itself is only read; the snapshot is
// committed with a temp-file rename like every other artifact.
func (l *Ledger) ExportSnapshot(dst string) error {
	src, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer src.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("init zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("compress ledger: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("finish zstd stream: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
