package trigger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/leakprobe/pkg/probe/churn"
	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
	"github.com/jamesainslie/leakprobe/pkg/probe/memory"
	"github.com/jamesainslie/leakprobe/pkg/probe/output"
	"github.com/jamesainslie/leakprobe/pkg/probe/transfer"
)

const mib = 1 << 20

// seqSampler returns the given KiB values in order and counts calls.
type seqSampler struct {
	values []uint64
	calls  int
}

func (s *seqSampler) ResidentKiB() (uint64, error) {
	v := s.values[min(s.calls, len(s.values)-1)]
	s.calls++
	return v, nil
}

// fakeFactory records targets and counts closes.
type fakeFactory struct {
	targets []string
	closed  int
	openErr error
}

type fakeConn struct{ f *fakeFactory }

func (c fakeConn) Close() error {
	c.f.closed++
	return nil
}

func (f *fakeFactory) Open(target string) (io.Closer, error) {
	f.targets = append(f.targets, target)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return fakeConn{f: f}, nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func readConfig(t *testing.T, n int) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source")
	require.NoError(t, os.WriteFile(path, make([]byte, 2*mib), 0o644))
	return Config{
		Iterations:   n,
		TransferSize: mib,
		Host:         "localhost",
		BasePort:     4000,
		Mode:         transfer.ModeRead,
		Path:         path,
	}
}

func newRunner(t *testing.T, cfg Config, opts ...Option) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	base := []Option{
		WithOutput(&out),
		WithFactory(&fakeFactory{}),
		WithSleep(noSleep),
	}
	r, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return r, &out
}

func iterationLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Iteration ") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestRun_EmitsOneLinePerIteration(t *testing.T) {
	r, out := newRunner(t, readConfig(t, 5))

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	lines := iterationLines(out.String())
	require.Len(t, lines, 5)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, fmt.Sprintf("Iteration %d/5: Current RSS: ", i+1)), line)
		assert.Contains(t, line, " MB | Total increase: +")
	}
	assert.Equal(t, 5, summary.Completed)
	assert.False(t, summary.Interrupted)
}

func TestRun_HeaderPrecedesIterations(t *testing.T) {
	sampler := &seqSampler{values: []uint64{10240}}
	r, out := newRunner(t, readConfig(t, 1), WithSampler(sampler))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(out.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, fmt.Sprintf("PID: %d", os.Getpid()), lines[0])
	assert.Equal(t, "Initial RSS: 10.00 MB", lines[1])
	assert.Equal(t, output.Separator, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "Iteration 1/1"))
}

func TestRun_BaselineSampledOnce(t *testing.T) {
	sampler := &seqSampler{values: []uint64{1000, 2000, 3000, 4000}}
	r, _ := newRunner(t, readConfig(t, 3), WithSampler(sampler))

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	// One baseline plus one sample per iteration.
	assert.Equal(t, 4, sampler.calls)
	assert.Equal(t, uint64(1000), summary.BaselineKiB)
}

func TestRun_DeltaAgainstBaseline(t *testing.T) {
	// Baseline 10 MiB, then 12, 9.5, 10 MiB.
	sampler := &seqSampler{values: []uint64{10240, 12288, 9728, 10240}}
	r, out := newRunner(t, readConfig(t, 3), WithSampler(sampler))

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Iteration 1/3: Current RSS: 12.00 MB | Total increase: +2.00 MB",
		"Iteration 2/3: Current RSS: 9.50 MB | Total increase: +-0.50 MB",
		"Iteration 3/3: Current RSS: 10.00 MB | Total increase: +0.00 MB",
	}, iterationLines(out.String()))

	assert.Equal(t, uint64(12288), summary.PeakKiB)
	assert.Equal(t, uint64(10240), summary.FinalKiB)
	assert.InDelta(t, 0.0, summary.FinalDeltaMiB(), 1e-9)
}

func TestRun_DegradedSamples(t *testing.T) {
	calls := 0
	sampler := memory.Func(func() (uint64, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("proc unreadable")
		}
		return 2048, nil
	})

	var out bytes.Buffer
	r, err := New(readConfig(t, 2),
		WithOutput(&out),
		WithSampler(sampler),
		WithFactory(&fakeFactory{}),
		WithSleep(noSleep),
		WithFormatter(&output.JSONFormatter{}))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed, "an unavailable sample never stops the run")
	assert.Equal(t, 1, summary.Degraded)
	assert.Contains(t, out.String(), `"degraded":true`)
}

func TestRun_ChurnTargetsPerIteration(t *testing.T) {
	factory := &fakeFactory{}
	r, _ := newRunner(t, readConfig(t, 3), WithFactory(factory))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:4000", "localhost:4001", "localhost:4002"}, factory.targets)
	assert.Equal(t, 3, factory.closed, "every channel is released in its own iteration")
}

func TestRun_ChurnErrorsAreNotFatal(t *testing.T) {
	factory := &fakeFactory{openErr: errors.New("no channel for you")}
	r, _ := newRunner(t, readConfig(t, 3), WithFactory(factory))

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 3, summary.ChurnErrors)
}

func TestRun_WriteModeRewritesTargetEachIteration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target")
	cfg := Config{
		Iterations:   3,
		TransferSize: mib,
		Host:         "localhost",
		BasePort:     4000,
		Mode:         transfer.ModeWrite,
		Path:         path,
	}

	// The sampler runs after each iteration's I/O phase, so it can see
	// the file the worker just wrote.
	var sizes []int64
	sampler := memory.Func(func() (uint64, error) {
		if info, err := os.Stat(path); err == nil {
			sizes = append(sizes, info.Size())
		}
		return 1024, nil
	})

	r, _ := newRunner(t, cfg, WithSampler(sampler))
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{mib, mib, mib}, sizes)
	assert.Zero(t, summary.IOErrors)

	info, err := os.Stat(path)
	require.NoError(t, err, "the write target stays in place after the run")
	assert.Equal(t, int64(mib), info.Size())
}

func TestRun_ShortSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small")
	require.NoError(t, os.WriteFile(path, make([]byte, 10*mib), 0o644))

	cfg := Config{
		Iterations:   2,
		TransferSize: 30 * mib,
		Host:         "localhost",
		BasePort:     4000,
		Mode:         transfer.ModeRead,
		Path:         path,
	}

	var out bytes.Buffer
	r, err := New(cfg,
		WithOutput(&out),
		WithFactory(&fakeFactory{}),
		WithSleep(noSleep),
		WithFormatter(&output.YAMLFormatter{}))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 2, summary.ShortReads)
	assert.Zero(t, summary.IOErrors)
	assert.Contains(t, out.String(), fmt.Sprintf("io_bytes: %d", 10*mib))
}

func TestRun_UnopenableTargetLogsEveryIteration(t *testing.T) {
	ch := logging.Subscribe()
	defer logging.Unsubscribe(ch)

	cfg := Config{
		Iterations:   3,
		TransferSize: mib,
		Host:         "localhost",
		BasePort:     4000,
		Mode:         transfer.ModeWrite,
		Path:         filepath.Join(t.TempDir(), "missing-dir", "target"),
	}
	r, out := newRunner(t, cfg)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, iterationLines(out.String()), 3, "every iteration still reports")
	assert.Equal(t, 3, summary.IOErrors)

	var openErrors []int
	for {
		select {
		case e := <-ch:
			if e.Component == "trigger" && e.Level == logging.LevelError {
				openErrors = append(openErrors, iterationField(e.Fields))
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, []int{1, 2, 3}, openErrors)
}

func iterationField(fields []interface{}) int {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == "iteration" {
			if n, ok := fields[i+1].(int); ok {
				return n
			}
		}
	}
	return 0
}

func TestRun_NoPacingIsFast(t *testing.T) {
	cfg := readConfig(t, 3)
	cfg.Pacing = 0

	var out bytes.Buffer
	r, err := New(cfg, WithOutput(&out), WithFactory(&fakeFactory{}))
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, iterationLines(out.String()), 3)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_PacingBetweenIterations(t *testing.T) {
	cfg := readConfig(t, 4)
	cfg.Pacing = 100 * time.Millisecond

	var pauses []time.Duration
	r, _ := newRunner(t, cfg, WithSleep(func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}))

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{cfg.Pacing, cfg.Pacing, cfg.Pacing, cfg.Pacing}, pauses)
}

func TestRun_CancelStopsBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeps := 0
	r, out := newRunner(t, readConfig(t, 10), WithSleep(func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}))

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 2, summary.Completed)
	assert.Len(t, iterationLines(out.String()), 2)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestRun_ReportWriteFailure(t *testing.T) {
	r, err := New(readConfig(t, 2), WithOutput(failingWriter{}), WithFactory(&fakeFactory{}), WithSleep(noSleep))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_RealSamplerAndChannels(t *testing.T) {
	cfg := readConfig(t, 3)

	var out bytes.Buffer
	r, err := New(cfg, WithOutput(&out), WithFactory(churn.GRPC{}), WithSleep(noSleep))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Completed)
	assert.Zero(t, summary.ChurnErrors)
	assert.Zero(t, summary.Degraded)
	assert.Positive(t, summary.PeakKiB)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Iterations:   1,
		TransferSize: 1,
		Host:         "localhost",
		BasePort:     4000,
		Mode:         transfer.ModeRead,
		Path:         "/tmp/x",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no iterations", func(c *Config) { c.Iterations = 0 }},
		{"no transfer", func(c *Config) { c.TransferSize = 0 }},
		{"negative pacing", func(c *Config) { c.Pacing = -1 }},
		{"empty path", func(c *Config) { c.Path = "" }},
		{"unknown mode", func(c *Config) { c.Mode = "sideways" }},
		{"port overflow", func(c *Config) { c.BasePort = 65535; c.Iterations = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
