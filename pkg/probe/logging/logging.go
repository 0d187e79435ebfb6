// Package logging provides component loggers for leakprobe, backed by
// charmbracelet/log with a rotating file sink and an optional stderr sink.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info", ConsoleLevel: "warn"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("trigger")
//	logger.Error("open failed", "path", path, "err", err)
//
// Loggers obtained before Init stay valid: they pick up the sinks
// configured by the most recent Init call.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to their file log levels.
	Components map[string]string

	// ConsoleLevel enables console output at the specified level.
	// Empty disables console output.
	ConsoleLevel string

	// Console is where console output goes. Nil means os.Stderr.
	Console io.Writer
}

// LogEntry is a single log entry delivered to subscribers.
type LogEntry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
	Fields    []interface{}
}

// Logger is a named component logger. The zero value is not usable;
// obtain loggers with Get.
type Logger struct {
	component string
	fields    []interface{}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

// With returns a logger for the same component carrying extra key/value pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &Logger{component: l.component, fields: fields}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	kv := args
	if len(l.fields) > 0 {
		kv = make([]interface{}, 0, len(l.fields)+len(args))
		kv = append(kv, l.fields...)
		kv = append(kv, args...)
	}

	globalState.mu.RLock()
	s := globalState.sinks[l.component]
	globalState.mu.RUnlock()

	if s != nil {
		logTo(s.file, level, msg, kv...)
		if s.console != nil {
			logTo(s.console, level, msg, kv...)
		}
	}

	globalState.broadcast(LogEntry{
		Time:      time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Fields:    kv,
	})
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// sink is the pair of charm loggers backing one component.
type sink struct {
	file    *log.Logger
	console *log.Logger
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	sinks       map[string]*sink
	subscribers map[chan LogEntry]struct{}

	consoleEnabled bool
	consoleLevel   Level
	console        io.Writer
}

var globalState = &state{
	components:  make(map[string]Level),
	sinks:       make(map[string]*sink),
	subscribers: make(map[chan LogEntry]struct{}),
}

// Init initializes the logging system with the given configuration.
// Calling Init again replaces the previous configuration.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	var consoleLevel Level
	if cfg.ConsoleLevel != "" {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.writer != nil {
		if err := globalState.writer.Close(); err != nil {
			_ = writer.Close()
			return fmt.Errorf("closing existing writer: %w", err)
		}
	}

	globalState.writer = writer
	globalState.level = level
	globalState.components = components
	globalState.consoleEnabled = cfg.ConsoleLevel != ""
	globalState.consoleLevel = consoleLevel
	globalState.console = cfg.Console
	if globalState.console == nil {
		globalState.console = os.Stderr
	}
	globalState.initialized = true

	for component := range globalState.sinks {
		globalState.sinks[component] = newSink(component)
	}

	return nil
}

// Get returns a logger for the given component. Before Init, output is
// discarded but subscribers still receive entries.
func Get(component string) *Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if _, ok := globalState.sinks[component]; !ok {
		globalState.sinks[component] = newSink(component)
	}
	return &Logger{component: component}
}

// newSink must be called with globalState.mu held.
func newSink(component string) *sink {
	level := globalState.level
	if compLevel, ok := globalState.components[component]; ok {
		level = compLevel
	}

	if !globalState.initialized {
		return &sink{
			file: log.NewWithOptions(io.Discard, log.Options{Prefix: component}),
		}
	}

	s := &sink{
		file: log.NewWithOptions(globalState.writer, log.Options{
			Level:           level.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}

	if globalState.consoleEnabled {
		s.console = log.NewWithOptions(globalState.console, log.Options{
			Level:           globalState.consoleLevel.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}

	return s
}

// Close flushes and closes the log file and all subscriber channels.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	for ch := range globalState.subscribers {
		close(ch)
		delete(globalState.subscribers, ch)
	}

	var err error
	if globalState.writer != nil {
		if cerr := globalState.writer.Close(); cerr != nil {
			err = fmt.Errorf("closing log writer: %w", cerr)
		}
		globalState.writer = nil
	}

	globalState.initialized = false
	globalState.components = make(map[string]Level)
	for component := range globalState.sinks {
		globalState.sinks[component] = newSink(component)
	}

	return err
}

// Subscribe returns a buffered channel that receives every log entry.
// Entries are dropped when the channel is full.
func Subscribe() <-chan LogEntry {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	ch := make(chan LogEntry, 256)
	globalState.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription channel without closing it.
func Unsubscribe(ch <-chan LogEntry) {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	for subCh := range globalState.subscribers {
		if subCh == ch {
			delete(globalState.subscribers, subCh)
			return
		}
	}
}

func (s *state) broadcast(entry LogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/leakprobe/leakprobe.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "leakprobe", "leakprobe.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:        "info",
		Path:         DefaultLogPath(),
		Rotation:     DefaultRotationConfig(),
		ConsoleLevel: "warn",
	}
}
