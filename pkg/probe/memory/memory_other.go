//go:build !linux

package memory

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/process"
)

// Process samples RSS through the platform process-information API.
type Process struct{}

// ResidentKiB returns the RSS reported for the current pid.
func (Process) ResidentKiB() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return info.RSS / 1024, nil
}

// Default returns the sampler for the running platform.
func Default() Sampler {
	return Process{}
}
