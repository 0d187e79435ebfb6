package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/leakprobe/pkg/probe/config"
	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
)

var (
	cfgFile   string
	probePath string
	rootCmd   = &cobra.Command{
		Use:   "leakprobe",
		Short: "Watch process memory while repeating bulk file I/O",
		Long: `Leakprobe repeats a large file read or write on a short-lived worker,
creates and releases a gRPC channel, and prints the resident set size
after every iteration relative to the size measured before the first.

A steadily climbing "Total increase" points at memory that the I/O path
or the channel lifecycle never gives back.

Examples:
  leakprobe                          # 50 reads of 30MiB from a generated file
  leakprobe write                    # 50 writes of 30MiB to /tmp/test_file.txt
  leakprobe read --iterations 200    # longer run
  leakprobe -o pretty --pacing 0s    # colored report, no pause
  leakprobe config show              # show effective configuration`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: initializeLogging,
		RunE:              runProbe(""),
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/leakprobe/config.yaml)")
	flags.Int("iterations", config.DefaultIterations, "number of iterations")
	flags.String("transfer-size", config.DefaultTransferSize, "bytes read or written per iteration (e.g., 30MiB)")
	flags.String("mock-size", config.DefaultMockSize, "size of the generated read source file")
	flags.Duration("pacing", config.DefaultPacing, "pause between iterations")
	flags.String("host", config.DefaultHost, "host of the churned gRPC channels")
	flags.Int("base-port", config.DefaultBasePort, "port of the first churned channel")
	flags.StringVar(&probePath, "path", "", "file to read or write (overrides read_path/write_path)")
	flags.StringP("output", "o", config.DefaultOutput, "report format: plain, pretty, json, yaml")
	flags.Bool("keep-mock", false, "leave the generated read source file in place")
	flags.BoolP("verbose", "v", false, "debug output on stderr")
	flags.BoolP("quiet", "q", false, "only errors on stderr")

	bindings := map[string]string{
		"iterations":    "iterations",
		"transfer_size": "transfer-size",
		"mock_size":     "mock-size",
		"pacing":        "pacing",
		"host":          "host",
		"base_port":     "base-port",
		"output":        "output",
		"keep_mock":     "keep-mock",
		"verbose":       "verbose",
		"quiet":         "quiet",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig points the global viper at the config file and environment.
func initConfig() {
	v := viper.GetViper()
	config.Configure(v, cfgFile)
	config.SetDefaults(v)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initializeLogging is the PersistentPreRunE hook. It never dereferences
// its arguments.
func initializeLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(viper.GetViper())
	if err != nil {
		return err
	}

	if err := config.EnsureStateDir(); err != nil {
		return err
	}

	consoleLevel := cfg.Logging.ConsoleLevel
	switch {
	case viper.GetBool("verbose"):
		consoleLevel = "debug"
	case viper.GetBool("quiet"):
		consoleLevel = "error"
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     parseRotationConfig(cfg.Logging.Rotation),
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLevel,
		Console:      os.Stderr,
	}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

// parseRotationConfig converts the configured rotation settings, falling
// back to the default size when max_size is empty or unparseable.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
	if n, err := rc.ParseRotationMaxSize(); err == nil && n > 0 {
		out.MaxSize = n
	}
	return out
}
