/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-02
 */
package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// LogCallback receives every line that clears the level filter
type LogCallback func(level LogLevel, message string)

// Logger writes leveled, prefixed lines to a writer. A callback, when
// set, takes over delivery so embedders can route lines into their own
// pipeline instead.
type Logger struct {
	mu       sync.RWMutex
	level    LogLevel
	prefix   string
	out      io.Writer
	callback LogCallback
}

// NewLogger creates a logger writing to stdout at info level
func NewLogger(prefix string) *Logger {
	return &Logger{
		level:  LogLevelInfo,
		prefix: prefix,
		out:    os.Stdout,
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the shared logger the package-level functions use
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("callcore")
	})
	return defaultLogger
}

// SetLevel sets the minimum level that gets written
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects lines to w
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// SetCallback installs a delivery callback; nil restores writer output
func (l *Logger) SetCallback(callback LogCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = callback
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.RLock()
	minLevel := l.level
	prefix := l.prefix
	out := l.out
	callback := l.callback
	l.mu.RUnlock()

	if level < minLevel {
		return
	}

	line := fmt.Sprintf("[%s] [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		level, prefix, fmt.Sprintf(format, args...))

	if callback != nil {
		callback(level, line)
		return
	}
	fmt.Fprintln(out, line)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LogLevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LogLevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LogLevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LogLevelError, format, args...)
}

// Debug logs a debug message on the shared logger
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Info logs an info message on the shared logger
func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warn logs a warning message on the shared logger
func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Error logs an error message on the shared logger
func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}
