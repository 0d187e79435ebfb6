// Package trigger drives a probe run: a fixed number of strictly
// sequential iterations, each doing one bulk I/O operation on a worker
// goroutine, one channel create/release cycle, and one RSS sample
// reported against the baseline taken before the first iteration.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/leakprobe/pkg/probe/churn"
	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
	"github.com/jamesainslie/leakprobe/pkg/probe/memory"
	"github.com/jamesainslie/leakprobe/pkg/probe/output"
	"github.com/jamesainslie/leakprobe/pkg/probe/transfer"
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid trigger config")

// Config holds the parameters of one run.
type Config struct {
	Iterations   int
	TransferSize int
	Pacing       time.Duration
	Host         string
	BasePort     int
	Mode         transfer.Mode
	Path         string
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.Iterations < 1:
		return fmt.Errorf("%w: iterations must be at least 1", ErrInvalidConfig)
	case c.TransferSize < 1:
		return fmt.Errorf("%w: transfer size must be positive", ErrInvalidConfig)
	case c.Pacing < 0:
		return fmt.Errorf("%w: pacing must not be negative", ErrInvalidConfig)
	case c.Path == "":
		return fmt.Errorf("%w: path must not be empty", ErrInvalidConfig)
	case c.Mode != transfer.ModeRead && c.Mode != transfer.ModeWrite:
		return fmt.Errorf("%w: mode %q", ErrInvalidConfig, c.Mode)
	}
	if _, err := churn.Address(c.Host, c.BasePort, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := churn.Address(c.Host, c.BasePort, c.Iterations); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Runner executes probe runs. A Runner is not safe for concurrent Run calls.
type Runner struct {
	cfg       Config
	sampler   memory.Sampler
	factory   churn.Factory
	formatter output.Formatter
	out       io.Writer
	sleep     func(context.Context, time.Duration) error
	logger    *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSampler replaces the platform RSS sampler.
func WithSampler(s memory.Sampler) Option {
	return func(r *Runner) { r.sampler = s }
}

// WithFactory replaces the gRPC channel factory.
func WithFactory(f churn.Factory) Option {
	return func(r *Runner) { r.factory = f }
}

// WithFormatter replaces the plain formatter.
func WithFormatter(f output.Formatter) Option {
	return func(r *Runner) { r.formatter = f }
}

// WithOutput sets the report destination (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithSleep replaces the pacing sleep.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

// New validates cfg and returns a Runner.
func New(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		sampler:   memory.Default(),
		factory:   churn.GRPC{},
		formatter: &output.PlainFormatter{},
		out:       os.Stdout,
		sleep:     sleepContext,
		logger:    logging.Get("trigger"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run performs every iteration and returns the summary. The only early
// exit is ctx cancellation, checked between phases; it yields a summary
// marked Interrupted and a nil error. Errors are returned only when the
// report itself cannot be written.
func (r *Runner) Run(ctx context.Context) (*output.Summary, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := r.logger.With("run", runID)

	baseline, baseErr := memory.Read(r.sampler)
	if baseErr != nil {
		log.Warn("baseline sample unavailable, reporting against zero", "err", baseErr)
	}

	header := &output.Header{
		RunID:        runID,
		PID:          os.Getpid(),
		Mode:         r.cfg.Mode.String(),
		Target:       r.cfg.Path,
		Iterations:   r.cfg.Iterations,
		TransferSize: int64(r.cfg.TransferSize),
		BaselineKiB:  baseline,
		Degraded:     baseErr != nil,
		Started:      started,
	}
	if err := r.formatter.Header(r.out, header); err != nil {
		return nil, fmt.Errorf("writing report header: %w", err)
	}

	log.Info("probe started",
		"mode", r.cfg.Mode, "iterations", r.cfg.Iterations,
		"transfer_size", r.cfg.TransferSize, "path", r.cfg.Path,
		"baseline_kib", baseline)

	summary := &output.Summary{
		RunID:       runID,
		Iterations:  r.cfg.Iterations,
		BaselineKiB: baseline,
		PeakKiB:     baseline,
		FinalKiB:    baseline,
	}
	if baseErr != nil {
		summary.Degraded++
	}

	for i := 1; i <= r.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		rec := r.iterate(ctx, log.With("iteration", i), i, baseline)
		if rec == nil {
			summary.Interrupted = true
			break
		}

		summary.Completed++
		summary.FinalKiB = rec.CurrentKiB
		if rec.CurrentKiB > summary.PeakKiB {
			summary.PeakKiB = rec.CurrentKiB
		}
		if rec.IOError != "" {
			summary.IOErrors++
		}
		if rec.ShortRead {
			summary.ShortReads++
		}
		if rec.ChurnError != "" {
			summary.ChurnErrors++
		}
		if rec.Degraded {
			summary.Degraded++
		}

		if err := r.formatter.Record(r.out, rec); err != nil {
			return summary, fmt.Errorf("writing report line %d: %w", i, err)
		}

		// Pacing phase.
		if err := r.sleep(ctx, r.cfg.Pacing); err != nil {
			summary.Interrupted = i < r.cfg.Iterations
			break
		}
	}

	summary.Duration = time.Since(started)

	if summary.Interrupted {
		log.Warn("probe interrupted", "completed", summary.Completed)
	}
	log.Info("probe finished",
		"completed", summary.Completed,
		"peak_kib", summary.PeakKiB,
		"final_kib", summary.FinalKiB,
		"io_errors", summary.IOErrors,
		"duration", summary.Duration)

	if err := r.formatter.Footer(r.out, summary); err != nil {
		return summary, fmt.Errorf("writing report footer: %w", err)
	}
	return summary, nil
}

// iterate runs the I/O, churn and measurement phases of iteration i.
// It returns nil when ctx was cancelled during the I/O phase.
func (r *Runner) iterate(ctx context.Context, log *logging.Logger, i int, baseline uint64) *output.Record {
	rec := &output.Record{Index: i, Total: r.cfg.Iterations}

	// I/O phase.
	if r.cfg.Mode == transfer.ModeWrite {
		transfer.PrepareWrite(r.cfg.Path)
	}
	op, err := transfer.OpFor(r.cfg.Mode, r.cfg.Path, r.cfg.TransferSize)
	if err == nil {
		var res transfer.Result
		res, err = transfer.Run(ctx, op)
		rec.IOBytes = res.Bytes
		rec.ShortRead = res.Short
	}
	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, transfer.ErrOpen):
		log.Error("cannot open transfer target, skipping I/O", "path", r.cfg.Path, "err", err)
		rec.IOError = err.Error()
	case err != nil:
		log.Error("transfer failed", "path", r.cfg.Path, "err", err)
		rec.IOError = err.Error()
	case rec.ShortRead:
		log.Debug("short read", "bytes", rec.IOBytes, "requested", r.cfg.TransferSize)
	}

	// Resource-churn phase.
	target, err := churn.Address(r.cfg.Host, r.cfg.BasePort, i)
	if err == nil {
		rec.ChurnTarget = target
		err = churn.Cycle(r.factory, target)
	}
	if err != nil {
		log.Warn("channel cycle failed", "target", target, "err", err)
		rec.ChurnError = err.Error()
	}

	// Measurement phase.
	current, err := memory.Read(r.sampler)
	if err != nil {
		log.Warn("rss sample unavailable", "err", err)
		rec.Degraded = true
	}
	rec.CurrentKiB = current
	rec.DeltaKiB = memory.DeltaKiB(current, baseline)

	return rec
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
