package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
)

func countLogs(t *testing.T, dir, prefix string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}

	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".log") {
			n++
		}
	}
	return n
}

func TestRotationBySize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer, err := logging.NewRotatingWriter(filepath.Join(dir, "size.log"), logging.RotationConfig{
		MaxSize: 512,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("x", 50) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := countLogs(t, dir, "size"); got < 2 {
		t.Errorf("expected at least 2 log files after rotation, got %d", got)
	}
}

func TestRotationMaxBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer, err := logging.NewRotatingWriter(filepath.Join(dir, "backups.log"), logging.RotationConfig{
		MaxSize:    128,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 50; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("y", 60) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Active file plus at most MaxBackups rotated files.
	if got := countLogs(t, dir, "backups"); got > 3 {
		t.Errorf("expected at most 3 log files, got %d", got)
	}
}

func TestRotationDirCreation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deeper", "probe.log")
	writer, err := logging.NewRotatingWriter(path, logging.DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer writer.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
	if writer.Path() != path {
		t.Errorf("Path() = %q, want %q", writer.Path(), path)
	}
}

func TestRotationWriteAfterClose(t *testing.T) {
	t.Parallel()

	writer, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), logging.RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := writer.Write([]byte("late\n")); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

func TestRotationConcurrentWrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "concurrent.log")
	writer, err := logging.NewRotatingWriter(path, logging.RotationConfig{MaxSize: 1 << 20})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, _ = writer.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if got := strings.Count(string(content), "line\n"); got != 200 {
		t.Errorf("line count = %d, want 200", got)
	}
}
