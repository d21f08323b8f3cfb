package segment

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prdforge/internal/logging"
)

// Scratch is a per-run temporary directory for an upload and its segments.
type Scratch struct {
	dir string
}

// NewScratch creates <root>/<prefix>-<unix millis>.
func NewScratch(root, prefix string) (*Scratch, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = "audio-upload"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	dir, err := os.MkdirTemp(root, fmt.Sprintf("%s-%d-", prefix, time.Now().UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string {
	return s.dir
}

// WriteFile copies r into the scratch directory under the base of name and
// returns the path and byte count.
func (s *Scratch) WriteFile(name string, r io.Reader) (string, int64, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "upload"
	}
	path := filepath.Join(s.dir, base)
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}
	written, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write scratch file: %w", copyErr)
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("close scratch file: %w", closeErr)
	}
	return path, written, nil
}

// Remove deletes the scratch directory and everything in it. Failures are
// logged, not returned.
func (s *Scratch) Remove(logger *slog.Logger) {
	if s == nil || s.dir == "" {
		return
	}
	if err := os.RemoveAll(s.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "scratch cleanup failed", "scratch_cleanup_failed",
			logging.String("path", s.dir),
			logging.Error(err),
		)
	}
}
