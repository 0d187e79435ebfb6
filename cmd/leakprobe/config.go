package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/leakprobe/pkg/probe/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage leakprobe configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/leakprobe/config.yaml (if set)
  2. ~/.config/leakprobe/config.yaml

Environment variables can override config file settings using the LEAKPROBE_ prefix:
  LEAKPROBE_ITERATIONS=200
  LEAKPROBE_TRANSFER_SIZE=64MiB
  LEAKPROBE_PACING=0s`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources as YAML.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the variables reported by config show.
var envOverrides = []string{
	"LEAKPROBE_MODE",
	"LEAKPROBE_ITERATIONS",
	"LEAKPROBE_TRANSFER_SIZE",
	"LEAKPROBE_MOCK_SIZE",
	"LEAKPROBE_PACING",
	"LEAKPROBE_HOST",
	"LEAKPROBE_BASE_PORT",
	"LEAKPROBE_READ_PATH",
	"LEAKPROBE_WRITE_PATH",
	"LEAKPROBE_KEEP_MOCK",
	"LEAKPROBE_OUTPUT",
	"LEAKPROBE_LOGGING_LEVEL",
	"LEAKPROBE_LOGGING_PATH",
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(out, "# Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(out, "# Config file: (using defaults, no file found)")
	}

	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(out, "# %s=%s\n", name, val)
		}
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	existed := fileExists(filepath.Join(dir, "config.yaml"))

	path, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if existed {
		fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists: %s\n", path)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created default config file: %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, "config.yaml"))
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
