// Package logging provides simple leveled logging for the ocfcache engine.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
)

// Logger wraps stdlib log with level support and structured key/value context.
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  string
	noColor bool
	mu      *sync.Mutex
	fields  []field
}

type field struct {
	key string
	val any
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration
type Config struct {
	Level   LogLevel
	Format  string // "text" (default) or "json"
	Output  io.Writer
	Sync    bool // reserved for callers that want every call flushed immediately
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		mu:      &sync.Mutex{},
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// with returns a derived logger carrying an extra key/value pair in its context.
func (l *Logger) with(key string, val any) *Logger {
	next := make([]field, len(l.fields), len(l.fields)+1)
	copy(next, l.fields)
	next = append(next, field{key, val})
	return &Logger{
		logger:  l.logger,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		mu:      l.mu,
		fields:  next,
	}
}

// WithCache returns a derived logger tagging every message with a cache id.
func (l *Logger) WithCache(cacheID uint32) *Logger {
	return l.with("cache_id", cacheID)
}

// WithQueue returns a derived logger tagging every message with a dispatch queue id.
func (l *Logger) WithQueue(queueID int) *Logger {
	return l.with("queue_id", queueID)
}

// WithRequest returns a derived logger tagging every message with a request tag and op.
func (l *Logger) WithRequest(tag uint64, op string) *Logger {
	return l.with("op", op).with("tag", tag)
}

// WithError returns a derived logger carrying an error in its context.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// formatArgs converts key-value pairs to a string
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.logJSON(level, msg, args)
		return
	}

	ctx := ""
	for _, f := range l.fields {
		ctx += fmt.Sprintf(" %s=%v", f.key, f.val)
	}
	l.logger.Printf("%s %s%s%s", prefix, msg, ctx, formatArgs(args))
}

func levelName(level LogLevel) string {
	switch level {
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

func (l *Logger) logJSON(level LogLevel, msg string, args []any) {
	rec := map[string]any{
		"level": levelName(level),
		"msg":   msg,
	}
	for _, f := range l.fields {
		rec[f.key] = f.val
	}
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			rec[k] = args[i+1]
		}
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(rec))
	for _, k := range keys {
		ordered[k] = rec[k]
	}

	b, err := json.Marshal(ordered)
	if err != nil {
		l.logger.Printf(`{"level":"error","msg":"log marshal failed: %v"}`, err)
		return
	}
	l.logger.Println(string(b))
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, "[INFO]", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, "[WARN]", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, "[ERROR]", msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf for compatibility with the internal/collab.Logger interface.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
