// Package config provides configuration management for leakprobe.
package config

import "time"

// Default configuration values. They reproduce the fixed constants of a
// probe run with no configuration at all.
const (
	// DefaultMode is the I/O direction when none is configured.
	DefaultMode = "read"

	// DefaultIterations is the number of probe iterations.
	DefaultIterations = 50

	// DefaultTransferSize is the per-iteration read or write size.
	DefaultTransferSize = "30MiB"

	// DefaultMockSize is the size of the generated read-mode source file.
	DefaultMockSize = "50MiB"

	// DefaultPacing is the pause between iterations.
	DefaultPacing = 100 * time.Millisecond

	// DefaultHost is the host of every churned channel.
	DefaultHost = "localhost"

	// DefaultBasePort is the port used by iteration 1.
	DefaultBasePort = 4000

	// DefaultReadPath is the mock file read in read mode.
	DefaultReadPath = "/tmp/tmp_mem_test_file"

	// DefaultWritePath is the file rewritten in write mode.
	DefaultWritePath = "/tmp/test_file.txt"

	// DefaultOutput is the report formatter.
	DefaultOutput = "plain"
)
