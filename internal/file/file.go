// Package file holds small filesystem helpers for application-owned data.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const appDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// WriteJSONAtomic marshals v into filename through a temp file and rename.
func WriteJSONAtomic(filename string, v any) error {
	return writeAtomic(filename, func(w io.Writer) (int64, error) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return 0, fmt.Errorf("encode json: %w", err)
		}
		return 0, nil
	})
}

// CopyAtomic streams reader into filename atomically and returns the number
// of bytes written.
func CopyAtomic(filename string, reader io.Reader) (int64, error) {
	var written int64
	err := writeAtomic(filename, func(w io.Writer) (int64, error) {
		n, err := io.Copy(w, reader)
		if err != nil {
			return n, fmt.Errorf("copy to temp: %w", err)
		}
		written = n
		return n, nil
	})
	return written, err
}

// RemoveDir deletes dirPath and everything below it. A missing directory is
// not an error.
func RemoveDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.RemoveAll(dirPath); err != nil {
		return fmt.Errorf("remove dir: %w", err)
	}
	return nil
}

func writeAtomic(filename string, fill func(io.Writer) (int64, error)) error {
	if filename == "" {
		return errors.New("empty filename")
	}
	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()
	cleanup := func() {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := fill(tempFile); err != nil {
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	// Windows refuses to rename over an existing file
	if _, err := os.Stat(filename); err == nil {
		_ = os.Remove(filename)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
