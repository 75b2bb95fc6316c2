package rdl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
)

// WriteFile writes data to path through a temporary file in the same
// directory followed by a rename, so readers never observe a partial
// document. Parent directories are created as needed. On failure the
// temporary file is removed and the error wraps apperrors.ErrWriteFailed.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", apperrors.ErrWriteFailed, dir, err)
	}

	temp, err := os.CreateTemp(dir, ".rdl-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", apperrors.ErrWriteFailed, err)
	}
	tempPath := temp.Name()
	fail := func(step string, err error) error {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: %s %s: %w", apperrors.ErrWriteFailed, step, path, err)
	}

	if _, err := temp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := temp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := temp.Chmod(0o644); err != nil {
		return fail("chmod", err)
	}
	if err := temp.Close(); err != nil {
		return fail("close", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: rename %s: %w", apperrors.ErrWriteFailed, path, err)
	}
	return nil
}
