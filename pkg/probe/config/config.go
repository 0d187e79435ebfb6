package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/leakprobe/pkg/probe/transfer"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level" yaml:"level"`
	ConsoleLevel string            `mapstructure:"console_level" yaml:"console_level"`
	Path         string            `mapstructure:"path" yaml:"path"`
	Rotation     RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components   map[string]string `mapstructure:"components" yaml:"components"`
}

// Config represents the probe configuration.
type Config struct {
	Mode         string        `mapstructure:"mode" yaml:"mode"`
	Iterations   int           `mapstructure:"iterations" yaml:"iterations"`
	TransferSize string        `mapstructure:"transfer_size" yaml:"transfer_size"`
	MockSize     string        `mapstructure:"mock_size" yaml:"mock_size"`
	Pacing       time.Duration `mapstructure:"pacing" yaml:"pacing"`
	Host         string        `mapstructure:"host" yaml:"host"`
	BasePort     int           `mapstructure:"base_port" yaml:"base_port"`
	ReadPath     string        `mapstructure:"read_path" yaml:"read_path"`
	WritePath    string        `mapstructure:"write_path" yaml:"write_path"`
	KeepMock     bool          `mapstructure:"keep_mock" yaml:"keep_mock"`
	Output       string        `mapstructure:"output" yaml:"output"`
	Logging      LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", DefaultMode)
	v.SetDefault("iterations", DefaultIterations)
	v.SetDefault("transfer_size", DefaultTransferSize)
	v.SetDefault("mock_size", DefaultMockSize)
	v.SetDefault("pacing", DefaultPacing)
	v.SetDefault("host", DefaultHost)
	v.SetDefault("base_port", DefaultBasePort)
	v.SetDefault("read_path", DefaultReadPath)
	v.SetDefault("write_path", DefaultWritePath)
	v.SetDefault("keep_mock", false)
	v.SetDefault("output", DefaultOutput)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console_level", "warn")
	v.SetDefault("logging.path", "") // empty means DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"trigger":  "info",
		"mockfile": "info",
	})
}

// Configure points v at the standard config file locations and the
// LEAKPROBE_ environment prefix. An explicit file overrides the search.
func Configure(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "leakprobe"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "leakprobe"))
		}
	}

	v.SetEnvPrefix("LEAKPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the default locations and environment.
func Load() (*Config, error) {
	v := viper.New()
	Configure(v, "")
	SetDefaults(v)
	return LoadFrom(v)
}

// LoadFrom reads the config file registered on v (a missing file is not
// an error) and unmarshals the merged settings.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.ReadPath, &cfg.WritePath, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, nil
}

// Validate checks every field needed to run the probe.
func (c *Config) Validate() error {
	if _, err := transfer.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be at least 1, got %d", ErrInvalid, c.Iterations)
	}
	if _, err := c.TransferBytes(); err != nil {
		return err
	}
	if _, err := c.MockBytes(); err != nil {
		return err
	}
	if c.Pacing < 0 {
		return fmt.Errorf("%w: pacing must not be negative, got %s", ErrInvalid, c.Pacing)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalid)
	}
	last := c.BasePort + c.Iterations - 1
	if c.BasePort < 1 || last > 65535 {
		return fmt.Errorf("%w: ports %d..%d fall outside 1..65535", ErrInvalid, c.BasePort, last)
	}
	if c.TargetPath() == "" {
		return fmt.Errorf("%w: %s path must not be empty", ErrInvalid, c.Mode)
	}
	return nil
}

// ParsedMode returns the transfer mode.
func (c *Config) ParsedMode() transfer.Mode {
	m, _ := transfer.ParseMode(c.Mode)
	return m
}

// TargetPath returns the file the configured mode reads or writes.
func (c *Config) TargetPath() string {
	if c.ParsedMode() == transfer.ModeWrite {
		return c.WritePath
	}
	return c.ReadPath
}

// TransferBytes parses TransferSize.
func (c *Config) TransferBytes() (int, error) {
	n, err := parseSize("transfer_size", c.TransferSize)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: transfer_size must be positive", ErrInvalid)
	}
	return int(n), nil
}

// MockBytes parses MockSize.
func (c *Config) MockBytes() (int64, error) {
	n, err := parseSize("mock_size", c.MockSize)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// maxSize keeps parsed sizes within an int on every platform.
const maxSize = 1 << 31

func parseSize(key, s string) (uint64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %w", ErrInvalid, key, s, err)
	}
	if n >= maxSize {
		return 0, fmt.Errorf("%w: %s %q exceeds 2GiB", ErrInvalid, key, s)
	}
	return n, nil
}

// ParseRotationMaxSize parses the rotation max size, returning 0 for empty.
func (r RotationConfig) ParseRotationMaxSize() (int64, error) {
	if r.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: logging.rotation.max_size %q: %w", ErrInvalid, r.MaxSize, err)
	}
	return int64(n), nil
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "leakprobe"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "leakprobe"), nil
}

// StateDir returns $XDG_STATE_HOME/leakprobe/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "leakprobe")
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// WriteDefault writes a default config file unless one exists and
// returns its path.
func WriteDefault() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	content := fmt.Sprintf(`# leakprobe configuration

# I/O direction of each iteration: read or write
mode: %s

# Number of iterations
iterations: %d

# Bytes moved per iteration
transfer_size: %s

# Size of the generated read-mode source file
mock_size: %s

# Pause between iterations
pacing: %s

# Each iteration creates and releases a gRPC channel to host:base_port+i-1
host: %s
base_port: %d

read_path: %s
write_path: %s

# Leave the generated read-mode file in place after the run
keep_mock: false

# Report format: plain, pretty, json, yaml
output: %s

logging:
  level: info
  console_level: warn
  # Empty means $XDG_STATE_HOME/leakprobe/leakprobe.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
`, DefaultMode, DefaultIterations, DefaultTransferSize, DefaultMockSize, DefaultPacing,
		DefaultHost, DefaultBasePort, DefaultReadPath, DefaultWritePath, DefaultOutput)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}
