// Package logging provides categorised structured logging for the
// LoreVault server. Each category writes JSON lines to a shared,
// size-rotated log file under the state dir. Before Initialize (and in
// tests) all loggers are silent no-ops.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Category labels a subsystem in log output.
type Category string

const (
	CategoryServer    Category = "server"
	CategoryIndex     Category = "index"
	CategoryOracle    Category = "oracle"
	CategoryLibrarian Category = "librarian"
	CategoryTools     Category = "tools"
	CategoryWatcher   Category = "watcher"
	CategoryAuth      Category = "auth"
)

type entry struct {
	Timestamp string         `json:"ts"`
	Category  string         `json:"cat"`
	Level     string         `json:"lvl"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

var (
	mu   sync.Mutex
	sink io.Writer
)

// Initialize points all loggers at <stateDir>/server.log with size
// rotation. Call once at server startup.
func Initialize(stateDir string) {
	mu.Lock()
	defer mu.Unlock()
	sink = &lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "server.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// SetOutput redirects log output. Tests use this to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
}

// Logger emits entries for one category.
type Logger struct {
	category Category
}

// Get returns the logger for a category.
func Get(category Category) *Logger {
	return &Logger{category: category}
}

func (l *Logger) log(level, format string, args ...any) {
	l.logFields(level, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) logFields(level, msg string, fields map[string]any) {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = sink.Write(append(data, '\n'))
}

func (l *Logger) Debug(format string, args ...any) { l.log("debug", format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log("info", format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log("warn", format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log("error", format, args...) }

// With logs at info level with structured fields attached.
func (l *Logger) With(msg string, fields map[string]any) {
	l.logFields("info", msg, fields)
}

// Timer measures an operation's duration for performance logging.
type Timer struct {
	logger *Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation in the given category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{logger: Get(category), op: operation, start: time.Now()}
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.logFields("debug", t.op, map[string]any{"duration_ms": elapsed.Milliseconds()})
	return elapsed
}
