//go:build linux

package memory

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultStatPath is the process-status file read by ProcStat.
const DefaultStatPath = "/proc/self/stat"

// ProcStat samples RSS from a /proc stat file.
type ProcStat struct {
	// Path overrides DefaultStatPath.
	Path string
}

// ResidentKiB reads the rss page count and scales it by the system page size.
func (p ProcStat) ResidentKiB() (uint64, error) {
	path := p.Path
	if path == "" {
		path = DefaultStatPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	pages, err := parseStatRSS(data)
	if err != nil {
		return 0, err
	}

	return pagesToKiB(pages, unix.Getpagesize()), nil
}

// Default returns the sampler for the running platform.
func Default() Sampler {
	return ProcStat{}
}
