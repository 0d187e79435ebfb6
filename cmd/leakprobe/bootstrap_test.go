package main

import (
	"os"
	"testing"

	"github.com/jamesainslie/leakprobe/pkg/probe/config"
	"github.com/jamesainslie/leakprobe/pkg/probe/logging"
)

func TestParseRotationConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    config.RotationConfig
		expected logging.RotationConfig
	}{
		{
			name: "default values",
			input: config.RotationConfig{
				MaxSize:    "10MB",
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10_000_000,
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
		},
		{
			name: "binary units",
			input: config.RotationConfig{
				MaxSize:    "1GiB",
				MaxAge:     7,
				MaxBackups: 3,
			},
			expected: logging.RotationConfig{
				MaxSize:    1024 * 1024 * 1024,
				MaxAge:     7,
				MaxBackups: 3,
			},
		},
		{
			name: "empty max_size uses default",
			input: config.RotationConfig{
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
		},
		{
			name: "invalid max_size uses default",
			input: config.RotationConfig{
				MaxSize:    "invalid",
				MaxAge:     21,
				MaxBackups: 4,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     21,
				MaxBackups: 4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRotationConfig(tt.input)
			if result != tt.expected {
				t.Errorf("parseRotationConfig() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestInitializeLoggingEnsuresStateDir(t *testing.T) {
	// XDG paths are cached at package init, so this uses the real state dir.
	if err := initializeLogging(nil, nil); err != nil {
		t.Fatalf("initializeLogging() returned error: %v", err)
	}
	defer func() { _ = logging.Close() }()

	if _, err := os.Stat(config.StateDir()); os.IsNotExist(err) {
		t.Errorf("state directory was not created: %s", config.StateDir())
	}
}
