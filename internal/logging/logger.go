package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Fields represents structured log fields.
type Fields map[string]interface{}

// sensitiveFieldNames are redacted wherever they appear in a log call's
// fields, global or per-call: directory passwords, WSSE digests, and the
// derived dhcrypto keys/authenticators must never reach a log file that a
// fleet ships off-box for aggregation.
var sensitiveFieldNames = map[string]bool{
	"password":    true,
	"digest":      true,
	"dev_auth":    true,
	"login_key":   true,
	"session_key": true,
	"wsse_digest": true,
}

const redactedValue = "[redacted]"

func redactFields(fields Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if sensitiveFieldNames[k] {
			out[k] = redactedValue
			continue
		}
		out[k] = v
	}
	return out
}

// LogEntry represents a single structured log entry.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Caller     string                 `json:"caller,omitempty"`
	Serial     string                 `json:"serial,omitempty"`
	Component  string                 `json:"component,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
}

// Logger is a structured logger with JSON output and log rotation, tagged
// by component (e.g. "session", "proxy", "holepunch") and optionally by
// the serial of the camera a session is speaking for.
type Logger struct {
	mu          sync.RWMutex
	output      io.Writer
	level       LogLevel
	fields      Fields
	logFile     *os.File
	logPath     string
	maxFileSize int64
	maxBackups  int
	component   string
}

// NewLogger creates a new structured logger. An empty logPath logs to
// stdout.
func NewLogger(component string, level LogLevel, logPath string) (*Logger, error) {
	logger := &Logger{
		level:       level,
		fields:      make(Fields),
		component:   component,
		logPath:     logPath,
		maxFileSize: 100 * 1024 * 1024,
		maxBackups:  10,
	}

	if logPath != "" {
		dir := filepath.Dir(logPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.logFile = file
		logger.output = file
	} else {
		logger.output = os.Stdout
	}

	return logger, nil
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the logger's current minimum level, so a caller can spin
// up sibling component loggers (e.g. "proxy", "session") at the same
// verbosity as this one.
func (l *Logger) Level() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// ParseLevel maps a config/flag level name to a LogLevel, defaulting to
// INFO for anything unrecognized.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// WithField adds a field to the logger's global context and returns the
// same logger for chaining.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields[key] = value
	return l
}

// WithFields adds multiple fields to the logger's global context.
func (l *Logger) WithFields(fields Fields) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range fields {
		l.fields[k] = v
	}
	return l
}

// WithSerial tags the logger's entries with a camera serial for the
// lifetime of a single session.
func (l *Logger) WithSerial(serial string) *Logger {
	return l.WithField("serial", serial)
}

func (l *Logger) log(level LogLevel, msg string, fields Fields) {
	l.mu.RLock()
	currentLevel := l.level
	output := l.output
	globalFields := l.fields
	component := l.component
	l.mu.RUnlock()

	if level < currentLevel {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Fields:    make(map[string]interface{}),
		Component: component,
	}

	for k, v := range redactFields(globalFields) {
		if k == "serial" {
			if s, ok := v.(string); ok {
				entry.Serial = s
				continue
			}
		}
		entry.Fields[k] = v
	}

	if fields != nil {
		for k, v := range redactFields(fields) {
			entry.Fields[k] = v
		}
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	if level >= ERROR {
		entry.StackTrace = getStackTrace(3)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(output, "ERROR: failed to marshal log entry: %v\n", err)
		return
	}

	fmt.Fprintf(output, "%s\n", data)

	l.rotateIfNeeded()

	if level == FATAL {
		l.Close()
		os.Exit(1)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) { l.logV(DEBUG, msg, fields) }

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) { l.logV(INFO, msg, fields) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) { l.logV(WARN, msg, fields) }

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) { l.logV(ERROR, msg, fields) }

// Fatal logs a fatal message and exits the program.
func (l *Logger) Fatal(msg string, fields ...Fields) { l.logV(FATAL, msg, fields) }

func (l *Logger) logV(level LogLevel, msg string, fields []Fields) {
	var f Fields
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(level, msg, f)
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(DEBUG, fmt.Sprintf(format, args...), nil) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(INFO, fmt.Sprintf(format, args...), nil) }

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(WARN, fmt.Sprintf(format, args...), nil) }

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

// Fatalf logs a formatted fatal message and exits.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) rotateIfNeeded() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil || l.logPath == "" {
		return
	}

	info, err := l.logFile.Stat()
	if err != nil {
		return
	}
	if info.Size() < l.maxFileSize {
		return
	}

	l.logFile.Close()

	for i := l.maxBackups - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.logPath, i)
		newPath := fmt.Sprintf("%s.%d", l.logPath, i+1)
		os.Rename(oldPath, newPath)
	}
	os.Rename(l.logPath, fmt.Sprintf("%s.1", l.logPath))

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.output = os.Stdout
		return
	}
	l.logFile = file
	l.output = file
}

// Close closes the logger and releases resources.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// SetMaxFileSize sets the maximum log file size before rotation.
func (l *Logger) SetMaxFileSize(size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxFileSize = size
}

// SetMaxBackups sets the maximum number of backup files to keep.
func (l *Logger) SetMaxBackups(count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxBackups = count
}

func getStackTrace(skip int) string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip, pcs[:])

	frames := runtime.CallersFrames(pcs[:n])
	trace := ""
	for {
		frame, more := frames.Next()
		trace += fmt.Sprintf("\n  %s:%d %s", filepath.Base(frame.File), frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return trace
}

var defaultLogger *Logger
var once sync.Once

// InitDefaultLogger initializes the global default logger.
func InitDefaultLogger(component string, level LogLevel, logPath string) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(component, level, logPath)
	})
	return err
}

// GetDefaultLogger returns the global default logger, creating a
// stdout-backed fallback if InitDefaultLogger was never called.
func GetDefaultLogger() *Logger {
	if defaultLogger == nil {
		defaultLogger, _ = NewLogger("default", INFO, "")
	}
	return defaultLogger
}

func Debug(msg string, fields ...Fields) { GetDefaultLogger().Debug(msg, fields...) }
func Info(msg string, fields ...Fields)  { GetDefaultLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Fields)  { GetDefaultLogger().Warn(msg, fields...) }
func Error(msg string, fields ...Fields) { GetDefaultLogger().Error(msg, fields...) }
func Fatal(msg string, fields ...Fields) { GetDefaultLogger().Fatal(msg, fields...) }
