package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Format selects the wire format of a Writer-backed logger.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// ParseFormat parses a string into a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", s)
	}
}

// WriterLogger writes one entry per line, as JSON objects or plain text.
type WriterLogger struct {
	mu     sync.Mutex
	level  Level
	format Format
	output io.Writer
	fields []Field
}

// New creates a logger writing to output in the given format.
func New(level Level, format Format, output io.Writer) *WriterLogger {
	if output == nil {
		output = os.Stderr
	}
	return &WriterLogger{level: level, format: format, output: output}
}

// NewDefault creates an info-level JSON logger on stderr.
func NewDefault() *WriterLogger {
	return New(LevelInfo, FormatJSON, os.Stderr)
}

func (l *WriterLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *WriterLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *WriterLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *WriterLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// WithFields returns a new logger carrying additional base fields.
func (l *WriterLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &WriterLogger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: merged,
	}
}

func (l *WriterLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	var line []byte
	if l.format == FormatText {
		line = renderText(now, level, msg, all)
	} else {
		line = renderJSON(now, level, msg, all)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.output.Write(line)
}

func renderJSON(now string, level Level, msg string, fields []Field) []byte {
	entry := struct {
		Time    string         `json:"time"`
		Level   string         `json:"level"`
		Message string         `json:"msg"`
		Fields  map[string]any `json:"fields,omitempty"`
	}{Time: now, Level: level.String(), Message: msg}

	if len(fields) > 0 {
		entry.Fields = make(map[string]any, len(fields))
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return []byte(fmt.Sprintf("%s [%s] %s\n", now, level, msg))
	}
	return append(data, '\n')
}

func renderText(now string, level Level, msg string, fields []Field) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", now, level, msg)

	if len(fields) > 0 {
		// Deterministic field order for readability and tests.
		sorted := make([]Field, len(fields))
		copy(sorted, fields)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
		for _, f := range sorted {
			fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
		}
	}

	b.WriteByte('\n')
	return []byte(b.String())
}

// NopLogger discards all output.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (NopLogger) WithFields(fields ...Field) Logger { return NopLogger{} }

// NewNop creates a no-op logger.
func NewNop() Logger {
	return NopLogger{}
}
