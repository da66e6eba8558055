package system

import (
	"sync"

	"go.uber.org/zap"

	"github.com/on-the-ground/weft/fiberid"
)

// Level defines the severity level for log records.
type Level string

const (
	// LevelDebug is used for detailed internal information.
	LevelDebug Level = "debug"

	// LevelInfo is used for general informational messages.
	LevelInfo Level = "info"

	// LevelWarn is used for potentially harmful situations.
	LevelWarn Level = "warn"

	// LevelError is used for error events that might still allow the
	// application to continue running.
	LevelError Level = "error"
)

// Record carries the structured part of a log call: the emitting
// fiber, the timestamp, an optional span label, and free-form fields.
type Record struct {
	Fiber      fiberid.ID
	TimeMillis int64
	Span       string
	Fields     map[string]any
}

// Console is the capability boundary to a logging sink.
type Console interface {
	Log(level Level, msg string, rec Record)
}

// ZapConsole is the live Console backed by a zap.Logger.
type ZapConsole struct {
	logger *zap.Logger
}

// NewZapConsole wraps a zap logger as a Console. Call Sync on the
// logger at teardown; a scope finalizer is the natural place.
func NewZapConsole(logger *zap.Logger) *ZapConsole {
	return &ZapConsole{logger: logger}
}

func (c *ZapConsole) Log(level Level, msg string, rec Record) {
	fields := make([]zap.Field, 0, len(rec.Fields)+3)
	fields = append(fields,
		zap.String("fiber", rec.Fiber.String()),
		zap.Int64("timeMillis", rec.TimeMillis),
	)
	if rec.Span != "" {
		fields = append(fields, zap.String("span", rec.Span))
	}
	for k, v := range rec.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case LevelDebug:
		c.logger.Debug(msg, fields...)
	case LevelInfo:
		c.logger.Info(msg, fields...)
	case LevelWarn:
		c.logger.Warn(msg, fields...)
	case LevelError:
		c.logger.Error(msg, fields...)
	default:
		c.logger.Info(msg, fields...)
	}
}

// Entry is one captured TestConsole record.
type Entry struct {
	Level   Level
	Message string
	Record  Record
}

// TestConsole captures log calls in memory for assertions.
type TestConsole struct {
	mu      sync.Mutex
	entries []Entry
}

func NewTestConsole() *TestConsole {
	return &TestConsole{}
}

func (c *TestConsole) Log(level Level, msg string, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{Level: level, Message: msg, Record: rec})
}

// Entries returns a copy of everything logged so far.
func (c *TestConsole) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Messages returns just the message strings, in order.
func (c *TestConsole) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Message
	}
	return out
}
