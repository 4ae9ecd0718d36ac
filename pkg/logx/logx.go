// Package logx provides structured logging with env-controlled debug domains.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes timestamped, ID-prefixed log lines.
type Logger struct {
	id string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	output   io.Writer = os.Stderr
	outputMu sync.RWMutex
)

func init() { //nolint:gochecknoinits // env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads RECAST_DEBUG and RECAST_DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if v := os.Getenv("RECAST_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugConfig.Enabled = true
	}

	if domains := os.Getenv("RECAST_DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger whose lines carry the given ID
// (a workflow ID, a component name).
func NewLogger(id string) *Logger {
	return &Logger{id: id}
}

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
}

// SetDebugDomains restricts debug output to the given domains.
// Empty enables all domains.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, d := range domains {
		debugConfig.Domains[strings.TrimSpace(d)] = true
	}
}

// SetFileOutput mirrors all log lines to a rotating file in addition to stderr.
func SetFileOutput(path string) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	})
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.id, level, message)

	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	fmt.Fprintln(w, line)
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Debug logs a debug message under a domain, honoring RECAST_DEBUG_DOMAINS.
//
// Usage:
//
//	logx.Debug("loop", "transition %s -> %s", from, to)
//	logx.Debug("llm", "retrying after %v", delay)
//
// Environment control:
//
//	RECAST_DEBUG=1                          # all domains
//	RECAST_DEBUG=1 RECAST_DEBUG_DOMAINS=llm # one domain
func Debug(domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	defaultLogger.log(LevelDebug, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

// DebugState logs a state transition under a domain.
func DebugState(domain, action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	Debug(domain, "State %s: %s%s", action, state, extraInfo)
}

func (l *Logger) GetID() string {
	return l.id
}

func (l *Logger) WithID(id string) *Logger {
	return &Logger{id: id}
}

var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("setup failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
// Use this when you need both logging and error wrapping:
//
//	if err != nil { return logx.Wrap(err, "db connect") }.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
