// Package output provides formatters for probe reports (plain, pretty,
// json, yaml).
//
// A report is streamed: one header, one record per iteration, then a
// footer. Formatters are looked up by name in a registry:
//
//	formatter, err := output.Get("plain")
//	if err != nil {
//	    return err
//	}
//	_ = formatter.Header(os.Stdout, &header)
package output

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/leakprobe/pkg/probe/memory"
)

// Header describes a run before its first iteration.
type Header struct {
	RunID        string    `json:"run_id" yaml:"run_id"`
	PID          int       `json:"pid" yaml:"pid"`
	Mode         string    `json:"mode" yaml:"mode"`
	Target       string    `json:"target" yaml:"target"`
	Iterations   int       `json:"iterations" yaml:"iterations"`
	TransferSize int64     `json:"transfer_size" yaml:"transfer_size"`
	BaselineKiB  uint64    `json:"baseline_kib" yaml:"baseline_kib"`
	Degraded     bool      `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Started      time.Time `json:"started" yaml:"started"`
}

// BaselineMiB returns the baseline in mebibytes.
func (h *Header) BaselineMiB() float64 {
	return memory.KiBToMiB(h.BaselineKiB)
}

// Record is the report for one iteration.
type Record struct {
	Index      int    `json:"index" yaml:"index"`
	Total      int    `json:"total" yaml:"total"`
	CurrentKiB uint64 `json:"current_kib" yaml:"current_kib"`
	DeltaKiB   int64  `json:"delta_kib" yaml:"delta_kib"`

	// Degraded is set when the sample was unavailable and CurrentKiB is
	// a zero placeholder.
	Degraded bool `json:"degraded,omitempty" yaml:"degraded,omitempty"`

	IOBytes     int    `json:"io_bytes" yaml:"io_bytes"`
	ShortRead   bool   `json:"short_read,omitempty" yaml:"short_read,omitempty"`
	IOError     string `json:"io_error,omitempty" yaml:"io_error,omitempty"`
	ChurnTarget string `json:"churn_target" yaml:"churn_target"`
	ChurnError  string `json:"churn_error,omitempty" yaml:"churn_error,omitempty"`
}

// CurrentMiB returns the sampled RSS in mebibytes.
func (r *Record) CurrentMiB() float64 {
	return memory.KiBToMiB(r.CurrentKiB)
}

// DeltaMiB returns the signed change from baseline in mebibytes.
func (r *Record) DeltaMiB() float64 {
	return float64(r.DeltaKiB) / 1024
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Completed   int           `json:"completed" yaml:"completed"`
	Iterations  int           `json:"iterations" yaml:"iterations"`
	BaselineKiB uint64        `json:"baseline_kib" yaml:"baseline_kib"`
	PeakKiB     uint64        `json:"peak_kib" yaml:"peak_kib"`
	FinalKiB    uint64        `json:"final_kib" yaml:"final_kib"`
	IOErrors    int           `json:"io_errors" yaml:"io_errors"`
	ShortReads  int           `json:"short_reads" yaml:"short_reads"`
	ChurnErrors int           `json:"churn_errors" yaml:"churn_errors"`
	Degraded    int           `json:"degraded_samples" yaml:"degraded_samples"`
	Interrupted bool          `json:"interrupted" yaml:"interrupted"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// FinalDeltaMiB returns the change between the last sample and baseline.
func (s *Summary) FinalDeltaMiB() float64 {
	return float64(memory.DeltaKiB(s.FinalKiB, s.BaselineKiB)) / 1024
}

// Formatter renders the three parts of a report.
type Formatter interface {
	Header(w io.Writer, h *Header) error
	Record(w io.Writer, r *Record) error
	Footer(w io.Writer, s *Summary) error
}

// FormatterFactory creates a new Formatter. Formatters may keep state
// across calls for one report, so each run gets its own instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds a factory, replacing any existing one with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the sorted names of all registered formatters.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// round2 rounds v to two decimal places, matching the plain report.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
