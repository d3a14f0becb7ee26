// Package utils hosts small ambient helpers shared by every component:
// the structured text logger and log-line sanitization.
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

const (
	logLevelEnvVar = "SLOPCOORD_LOG_LEVEL"
	logDirEnvVar   = "SLOPCOORD_LOG_DIR"
)

// LogCategory names one of the per-category log files a component writes to.
type LogCategory string

const (
	LogCategoryService LogCategory = "service"
	LogCategoryLatency LogCategory = "latency"
)

func (c LogCategory) fileName() string {
	return fmt.Sprintf("slopcoord-%s.log", c)
}

func resolveLogLevel() Level {
	switch strings.ToUpper(strings.TrimSpace(os.Getenv(logLevelEnvVar))) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func resolveLogDir() string {
	if dir := os.Getenv(logDirEnvVar); dir != "" {
		return dir
	}
	return "logs"
}

// sanitizeLogLine exists as a hook for redacting secrets before they hit
// disk. Today it passes content through unchanged: the values that flow
// through this logger (task ids, branch names, process status) are not
// secret-bearing, so redaction would only obscure useful debugging output.
func sanitizeLogLine(line string) string {
	return line
}

type fileTarget struct {
	mu   sync.Mutex
	file *os.File
	path string
}

var (
	targetsMu sync.Mutex
	targets   = map[LogCategory]*fileTarget{}
)

func targetFor(category LogCategory) *fileTarget {
	targetsMu.Lock()
	defer targetsMu.Unlock()

	if t, ok := targets[category]; ok {
		return t
	}

	dir := resolveLogDir()
	_ = os.MkdirAll(dir, 0o755)
	path := filepath.Join(dir, category.fileName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	var w *os.File
	if err == nil {
		w = f
	}
	t := &fileTarget{file: w, path: path}
	targets[category] = t
	return t
}

func (t *fileTarget) write(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return
	}
	_, _ = io.WriteString(t.file, line+"\n")
}

func (t *fileTarget) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// ResetLoggerForTests closes and forgets the cached file handle for a
// category so tests can point it at a fresh temp directory.
func ResetLoggerForTests(category LogCategory) {
	targetsMu.Lock()
	t, ok := targets[category]
	delete(targets, category)
	targetsMu.Unlock()
	if ok {
		_ = t.close()
	}
}

// ComponentLogger writes leveled, component-scoped lines to one category's
// log file: "<ts> [LEVEL] [CATEGORY] [Component] file.go:line - message".
type ComponentLogger struct {
	component string
	category  LogCategory
	level     Level
	target    *fileTarget
}

// NewComponentLogger returns a logger writing to the service log.
func NewComponentLogger(component string) *ComponentLogger {
	return newLogger(component, LogCategoryService)
}

// NewLatencyLogger returns a logger writing to the latency log.
func NewLatencyLogger(component string) *ComponentLogger {
	return newLogger(component, LogCategoryLatency)
}

func newLogger(component string, category LogCategory) *ComponentLogger {
	return &ComponentLogger{
		component: component,
		category:  category,
		level:     resolveLogLevel(),
		target:    targetFor(category),
	}
}

func (l *ComponentLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown.go", 0
	} else {
		file = filepath.Base(file)
	}
	msg := fmt.Sprintf(format, args...)
	text := fmt.Sprintf("%s [%s] [%s] [%s] %s:%d - %s",
		time.Now().Format("2006-01-02 15:04:05"),
		level, strings.ToUpper(string(l.category)), l.component, file, line, msg)
	l.target.write(sanitizeLogLine(text))
}

func (l *ComponentLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *ComponentLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *ComponentLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *ComponentLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

// Close flushes and closes the underlying log file handle.
func (l *ComponentLogger) Close() error {
	return l.target.close()
}
