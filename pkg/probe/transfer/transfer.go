// Package transfer implements the bulk I/O phase of a probe iteration:
// one read or write of a large, freshly allocated buffer, executed on a
// dedicated goroutine that the caller joins before moving on.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Mode selects the direction of the bulk I/O operation.
type Mode string

const (
	// ModeRead reads TransferSize bytes from an existing file.
	ModeRead Mode = "read"
	// ModeWrite writes TransferSize bytes to a freshly truncated file.
	ModeWrite Mode = "write"
)

// Sentinel errors.
var (
	// ErrOpen wraps failures to open the I/O target.
	ErrOpen = errors.New("opening transfer target")
	// ErrInvalidMode is returned by ParseMode for unknown modes.
	ErrInvalidMode = errors.New("invalid transfer mode")
	// ErrInvalidSize is returned for non-positive transfer sizes.
	ErrInvalidSize = errors.New("transfer size must be positive")
	// ErrWorkerPanic wraps a panic recovered from the worker goroutine.
	ErrWorkerPanic = errors.New("transfer worker panicked")
)

// ParseMode parses "read" or "write", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRead:
		return ModeRead, nil
	case ModeWrite:
		return ModeWrite, nil
	default:
		return "", fmt.Errorf("%w: %q (want read or write)", ErrInvalidMode, s)
	}
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}

// Result describes one completed transfer.
type Result struct {
	// Bytes is the number of bytes moved.
	Bytes int
	// Requested is the configured transfer size.
	Requested int
	// Short is set when a read hit end of file before Requested bytes.
	Short bool
}

// Op is a single bulk I/O operation.
type Op func() (Result, error)

// ReadChunk reads up to size bytes from path into a buffer allocated for
// this call only. A file shorter than size yields a short Result, not an
// error.
func ReadChunk(path string, size int) (Result, error) {
	if size <= 0 {
		return Result{}, ErrInvalidSize
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	res := Result{Bytes: n, Requested: size}
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		res.Short = true
		return res, nil
	default:
		return res, fmt.Errorf("reading %s: %w", path, err)
	}
}

// WriteChunk truncates (or creates) path and writes size zero bytes from
// a buffer allocated for this call only.
func WriteChunk(path string, size int) (Result, error) {
	if size <= 0 {
		return Result{}, ErrInvalidSize
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}

	buf := make([]byte, size)
	n, werr := f.Write(buf)
	res := Result{Bytes: n, Requested: size}

	if werr != nil {
		_ = f.Close()
		return res, fmt.Errorf("writing %s: %w", path, werr)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("closing %s: %w", path, err)
	}

	return res, nil
}

// PrepareWrite removes path so the next write starts from a fresh file.
// Every failure, including a missing file, is ignored.
func PrepareWrite(path string) {
	_ = os.Remove(path)
}

// OpFor returns the operation for mode against path.
func OpFor(mode Mode, path string, size int) (Op, error) {
	switch mode {
	case ModeRead:
		return func() (Result, error) { return ReadChunk(path, size) }, nil
	case ModeWrite:
		return func() (Result, error) { return WriteChunk(path, size) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

// Run executes op on its own goroutine and blocks until it finishes.
// The buffer owned by op is unreachable once Run returns. If ctx is
// cancelled first, Run still waits for op so that no worker outlives
// the iteration, then reports ctx.Err alongside op's outcome.
func Run(ctx context.Context, op Op) (Result, error) {
	type outcome struct {
		res Result
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
			}
			done <- out
		}()
		out.res, out.err = op()
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		out := <-done
		if out.err != nil {
			return out.res, errors.Join(ctx.Err(), out.err)
		}
		return out.res, ctx.Err()
	}
}
