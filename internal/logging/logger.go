// Package logging provides simple leveled logging for the driver
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger wraps stdlib log with level support, an optional JSON output
// mode, and a chain of structured tags accumulated by the With*
// constructors below.
type Logger struct {
	logger  *log.Logger
	out     io.Writer
	level   LogLevel
	format  string
	noColor bool
	sync    bool
	tags    []tag
	mu      sync.Mutex
}

type tag struct {
	key string
	val string
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
	Level LogLevel
	// Output is where log lines are written. Defaults to os.Stderr.
	Output io.Writer
	// Format selects the line encoding: "text" (default) or "json".
	Format string
	// Sync calls Output.Sync() after every line, for an Output that
	// implements it (e.g. *os.File), trading throughput for a
	// guarantee that a crash right after a log call didn't lose it.
	Sync bool
	// NoColor disables ANSI level coloring in text format. Has no
	// effect in json format.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Format: "text",
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
		out:     output,
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		sync:    config.Sync,
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

// withTag returns a copy of l carrying an additional structured tag,
// chained after any the parent already carries. The copy shares the
// parent's destination and formatting; in text mode it writes through
// the parent's *log.Logger, while in json mode each copy writes to the
// destination under its own lock.
func (l *Logger) withTag(key string, val any) *Logger {
	next := &Logger{
		logger:  l.logger,
		out:     l.out,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		sync:    l.sync,
		tags:    append(append([]tag{}, l.tags...), tag{key: key, val: fmt.Sprint(val)}),
	}
	return next
}

// WithDevice returns a logger that tags every line with the owning
// device number, matching the "dev=%d" DevID convention *Error already
// uses. Open calls this once a device has been assigned its slot in
// the global table, so every ring/fence log line from that point on is
// attributable to a specific accelerator even when several are open in
// the same process.
func (l *Logger) WithDevice(devID int) *Logger {
	return l.withTag("device_id", devID)
}

// WithContext returns a logger tagging every line with the owning
// Context's ordinal, the per-open-file-descriptor unit this driver
// serializes work under (the device-wide equivalent of the original
// ublk driver's per-queue logger, which has no analogue here since
// HardDoom II has a single command ring rather than multiple queues).
func (l *Logger) WithContext(contextID int) *Logger {
	return l.withTag("context_id", contextID)
}

// WithRequest returns a logger tagging every line with a submitted
// batch's identity: its monotonic batch counter and the operation name
// that produced it (e.g. "Submit", "CreateSurface"), so a ring of
// interleaved log lines from concurrent contexts can be untangled.
func (l *Logger) WithRequest(batchID int64, op string) *Logger {
	return l.withTag("op", op).withTag("tag", batchID)
}

// WithError returns a logger tagging every line with err's message,
// for a caller that wants the same failure attached to several log
// lines without repeating err.Error() at each call site.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.withTag("err", err.Error())
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

// levelName and levelColor give each level its text-format label and
// ANSI color (used unless NoColor is set).
func levelName(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func levelColor(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "\x1b[36m" // cyan
	case LevelInfo:
		return "\x1b[32m" // green
	case LevelWarn:
		return "\x1b[33m" // yellow
	case LevelError:
		return "\x1b[31m" // red
	default:
		return ""
	}
}

func (l *Logger) tagString() string {
	var s string
	for _, t := range l.tags {
		if s != "" {
			s += " "
		}
		s += t.key + "=" + t.val
	}
	return s
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.logJSON(level, msg, args)
	} else {
		l.logText(level, msg, args)
	}

	if l.sync {
		if s, ok := l.out.(interface{ Sync() error }); ok {
			s.Sync()
		}
	}
}

func (l *Logger) logText(level LogLevel, msg string, args []any) {
	name := "[" + levelName(level) + "]"
	if !l.noColor {
		name = levelColor(level) + name + "\x1b[0m"
	}
	tagStr := l.tagString()
	if tagStr != "" {
		l.logger.Printf("%s %s: %s%s", name, tagStr, msg, formatArgs(args))
		return
	}
	l.logger.Printf("%s %s%s", name, msg, formatArgs(args))
}

func (l *Logger) logJSON(level LogLevel, msg string, args []any) {
	fields := make(map[string]any, len(l.tags)+len(args)/2+2)
	fields["time"] = time.Now().Format(time.RFC3339Nano)
	fields["level"] = levelName(level)
	fields["msg"] = msg
	for _, t := range l.tags {
		fields[t.key] = t.val
	}
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	line, err := json.Marshal(fields)
	if err != nil {
		l.logger.Printf("[ERROR] logging: marshal json line: %v", err)
		return
	}
	l.out.Write(append(line, '\n'))
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// Printf for compatibility
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
