package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/leakprobe/pkg/probe/config"
	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
	"github.com/jamesainslie/leakprobe/pkg/probe/mockfile"
	"github.com/jamesainslie/leakprobe/pkg/probe/output"
	"github.com/jamesainslie/leakprobe/pkg/probe/transfer"
	"github.com/jamesainslie/leakprobe/pkg/probe/trigger"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Repeatedly read from a generated file",
	Long: `Generate a zero-filled source file (mock_size) at read_path, then read
transfer_size bytes from it on every iteration. The file is removed after
the run unless --keep-mock is set.`,
	Args: cobra.NoArgs,
	RunE: runProbe(transfer.ModeRead),
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Repeatedly rewrite a file",
	Long: `Delete write_path and write transfer_size zero bytes to it on every
iteration. The file is left in place after the run.`,
	Args: cobra.NoArgs,
	RunE: runProbe(transfer.ModeWrite),
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
}

// runProbe returns a RunE handler. An empty mode uses the configured one.
func runProbe(mode transfer.Mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadProbeConfig(mode)
		if err != nil {
			return err
		}

		formatter, err := output.Get(cfg.Output)
		if err != nil {
			return fmt.Errorf("unknown output format %q: available formats are %v", cfg.Output, output.Available())
		}

		tcfg, err := triggerConfig(cfg)
		if err != nil {
			return err
		}

		runner, err := trigger.New(tcfg,
			trigger.WithFormatter(formatter),
			trigger.WithOutput(cmd.OutOrStdout()))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := logging.Get("cli")

		if tcfg.Mode == transfer.ModeRead {
			mockBytes, err := cfg.MockBytes()
			if err != nil {
				return err
			}
			if err := mockfile.Generate(tcfg.Path, mockBytes); err != nil {
				logger.Error("failed to generate mock file", "path", tcfg.Path, "err", err)
			}
			if !cfg.KeepMock {
				defer func() {
					if err := mockfile.Remove(tcfg.Path); err != nil {
						logger.Warn("failed to remove mock file", "err", err)
					}
				}()
			}
		}

		summary, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if summary.Interrupted {
			logger.Warn("interrupted", "completed", summary.Completed, "iterations", summary.Iterations)
		}
		return nil
	}
}

// loadProbeConfig loads and validates the effective configuration with
// the command's mode and --path applied.
func loadProbeConfig(mode transfer.Mode) (*config.Config, error) {
	cfg, err := config.LoadFrom(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if mode != "" {
		cfg.Mode = mode.String()
	}
	if probePath != "" {
		expanded, err := config.ExpandPath(probePath)
		if err != nil {
			return nil, err
		}
		if cfg.ParsedMode() == transfer.ModeWrite {
			cfg.WritePath = expanded
		} else {
			cfg.ReadPath = expanded
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// triggerConfig maps a validated configuration onto a run.
func triggerConfig(cfg *config.Config) (trigger.Config, error) {
	n, err := cfg.TransferBytes()
	if err != nil {
		return trigger.Config{}, err
	}
	return trigger.Config{
		Iterations:   cfg.Iterations,
		TransferSize: n,
		Pacing:       cfg.Pacing,
		Host:         cfg.Host,
		BasePort:     cfg.BasePort,
		Mode:         cfg.ParsedMode(),
		Path:         cfg.TargetPath(),
	}, nil
}
