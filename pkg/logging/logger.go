// Package logging writes structured JSONL events for the request pipeline.
// Error text is scrubbed for secrets before anything hits disk.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log.
type Category string

const (
	CategoryAdmission Category = "admission"
	CategoryBudget    Category = "budget"
	CategoryCache     Category = "cache"
	CategoryLock      Category = "lock"
	CategoryResearch  Category = "research"
	CategorySources   Category = "sources"
	CategorySynthesis Category = "synthesis"
	CategoryModel     Category = "model"
	CategoryAPI       Category = "api"
)

// Event is one structured log line.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	Word      string         `json:"word,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Logger writes events to an event stream plus dedicated error and cost
// streams. All methods are nil-safe so components can run unlogged in tests.
type Logger struct {
	mu        sync.Mutex
	eventFile io.WriteCloser
	errorFile io.WriteCloser
	costFile  io.WriteCloser
	minLevel  Level
	redactor  *Redactor
}

// NewLogger opens the log streams under baseDir.
func NewLogger(baseDir string) (*Logger, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(baseDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}

	eventFile, err := open("events.jsonl")
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	errorFile, err := open("errors.jsonl")
	if err != nil {
		eventFile.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}
	costFile, err := open("costs.jsonl")
	if err != nil {
		eventFile.Close()
		errorFile.Close()
		return nil, fmt.Errorf("open cost log: %w", err)
	}

	return &Logger{
		eventFile: eventFile,
		errorFile: errorFile,
		costFile:  costFile,
		minLevel:  LevelInfo,
		redactor:  NewRedactor(),
	}, nil
}

// NewWriterLogger logs everything to a single writer. Used by tests and by
// the daemon's stderr fallback when no log directory is configured.
func NewWriterLogger(w io.Writer) *Logger {
	wc := nopWriteCloser{w}
	return &Logger{
		eventFile: wc,
		errorFile: wc,
		costFile:  wc,
		minLevel:  LevelInfo,
		redactor:  NewRedactor(),
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// SetMinLevel sets the minimum level that gets written.
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Log writes one event.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldLog(event.Level) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Message = l.redactor.Redact(event.Message)
	for k, v := range event.Details {
		if s, ok := v.(string); ok {
			event.Details[k] = l.redactor.Redact(s)
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	if l.eventFile != nil {
		_, _ = l.eventFile.Write(data)
	}
	if event.Level == LevelError && l.errorFile != nil && l.errorFile != l.eventFile {
		_, _ = l.errorFile.Write(data)
	}
	if event.Category == CategoryBudget && l.costFile != nil && l.costFile != l.eventFile {
		_, _ = l.costFile.Write(data)
	}
}

func (l *Logger) shouldLog(level Level) bool {
	ranks := map[Level]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}
	return ranks[level] >= ranks[l.minLevel]
}

// Debug logs a debug event.
func (l *Logger) Debug(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelDebug, Category: category, EventType: eventType, Message: message, Details: details})
}

// Info logs an info event.
func (l *Logger) Info(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelInfo, Category: category, EventType: eventType, Message: message, Details: details})
}

// Warn logs a warning event.
func (l *Logger) Warn(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelWarn, Category: category, EventType: eventType, Message: message, Details: details})
}

// Error logs an error event.
func (l *Logger) Error(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelError, Category: category, EventType: eventType, Message: message, Details: details})
}

// Close closes all log streams.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, f := range []io.WriteCloser{l.eventFile, l.errorFile, l.costFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing log files: %v", errs)
	}
	return nil
}
