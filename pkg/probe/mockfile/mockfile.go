// Package mockfile generates and removes the large zero-filled file that
// read-mode probe runs read from.
package mockfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
)

// ChunkSize is the size of each write while generating.
const ChunkSize = 1 << 20

var logger = logging.Get("mockfile")

// ErrInvalidSize is returned for negative sizes.
var ErrInvalidSize = errors.New("mock file size must not be negative")

// Generate creates or truncates path and fills it with size zero bytes.
func Generate(path string, size int64) error {
	if size < 0 {
		return ErrInvalidSize
	}

	logger.Info("generating mock file", "path", path, "size", humanize.IBytes(uint64(size)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating mock file %s: %w", path, err)
	}

	chunk := make([]byte, min(int64(ChunkSize), size))
	for written := int64(0); written < size; {
		n := min(int64(len(chunk)), size-written)
		if _, err := f.Write(chunk[:n]); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing mock file %s: %w", path, err)
		}
		written += n
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing mock file %s: %w", path, err)
	}

	logger.Info("mock file created", "path", path)
	return nil
}

// Remove deletes the mock file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing mock file %s: %w", path, err)
	}
	return nil
}
