// Package memory reports the resident set size of the current process.
//
// Each platform provides one Sampler behind the same contract: a
// synchronous query returning kibibytes. Linux reads /proc/self/stat;
// other platforms go through gopsutil.
package memory

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the platform cannot report RSS.
var ErrUnavailable = errors.New("resident memory unavailable")

// Sampler reports the current resident memory of the calling process.
type Sampler interface {
	// ResidentKiB returns the resident set size in kibibytes.
	ResidentKiB() (uint64, error)
}

// Func adapts an ordinary function to the Sampler interface.
type Func func() (uint64, error)

// ResidentKiB calls f.
func (f Func) ResidentKiB() (uint64, error) {
	return f()
}

// Read samples s and normalizes failures to ErrUnavailable. The returned
// value is zero whenever err is non-nil.
func Read(s Sampler) (uint64, error) {
	kib, err := s.ResidentKiB()
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return kib, nil
}

// KiBToMiB converts kibibytes to mebibytes.
func KiBToMiB(kib uint64) float64 {
	return float64(kib) / 1024
}

// DeltaKiB returns current - baseline as a signed value.
func DeltaKiB(current, baseline uint64) int64 {
	return int64(current) - int64(baseline)
}
