// Package logging provides structured logging with file and console output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) toZerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogEntry represents a single log entry kept in memory
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Config holds logger configuration
type Config struct {
	LogDir     string    // Directory for log files; empty disables the file
	Level      LogLevel  // Minimum log level (default: info)
	MaxHistory int       // Max entries to keep in memory (default: 1000)
	Console    bool      // Also log to console
	ConsoleOut io.Writer // Console destination (default: stderr)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		MaxHistory: 1000,
		Console:    true,
	}
}

// Logger wraps zerolog with file output and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	history *history
}

// New creates a new Logger
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}

	hist := &history{max: cfg.MaxHistory}
	writers := []io.Writer{hist}

	var file *os.File
	var logPath string
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		// Create log file with date-based name
		logPath = filepath.Join(cfg.LogDir, fmt.Sprintf("cortexpresence_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.ConsoleOut
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	zlog := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level.toZerolog()).
		With().
		Timestamp().
		Str("app", "cortexpresence").
		Logger()

	logger := &Logger{zlog: zlog, file: file, logPath: logPath, history: hist}

	initLog := logger.Component("logging")
	initLog.Debug().
		Str("logFile", logPath).
		Str("level", string(cfg.Level)).
		Msg("Logger initialized")

	return logger, nil
}

// SetOnLog sets a callback for real-time log streaming
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.history.mu.Lock()
	defer l.history.mu.Unlock()
	l.history.onLog = fn
}

// History returns up to limit recent log entries, oldest first. A
// non-positive limit returns everything retained.
func (l *Logger) History(limit int) []LogEntry {
	return l.history.recent(limit)
}

// LogPath returns the current log file path
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	closeLog := l.Component("logging")
	closeLog.Debug().Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// history decodes each JSON log line into a LogEntry ring.
type history struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
	onLog   func(LogEntry)
}

// reserved fields are lifted out of an event; everything else goes to Data.
var reserved = map[string]bool{"time": true, "level": true, "component": true, "message": true, "app": true}

func (h *history) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}

	entry := LogEntry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     str(fields["level"]),
		Component: str(fields["component"]),
		Message:   str(fields["message"]),
		Data:      formatData(fields),
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		// Remove oldest entries
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	onLog := h.onLog
	h.mu.Unlock()

	if onLog != nil {
		go onLog(entry)
	}
	return len(p), nil
}

func (h *history) recent(limit int) []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]LogEntry, limit)
	copy(out, h.entries[len(h.entries)-limit:])
	return out
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// formatData renders the non-reserved fields as sorted key=value pairs
func formatData(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}
