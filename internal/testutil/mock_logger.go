// Package testutil provides shared test helpers for the franchise service.
package testutil

import (
	"sync"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

// MockLogger implements logging.Logger and records every entry.
type MockLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
	fields   []logging.Field
	parent   *MockLogger
}

// LogMessage is a single captured entry.
type LogMessage struct {
	Level   string
	Message string
	Fields  []logging.Field
}

func NewMockLogger() *MockLogger {
	return &MockLogger{Messages: make([]LogMessage, 0)}
}

func (m *MockLogger) root() *MockLogger {
	if m.parent != nil {
		return m.parent.root()
	}
	return m
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := append(append([]logging.Field{}, m.fields...), fields...)
	r := m.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, LogMessage{Level: level, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

// With returns a child that shares the parent's message list.
func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	return &MockLogger{parent: m, fields: append(append([]logging.Field{}, m.fields...), fields...)}
}

func (m *MockLogger) Named(string) logging.Logger { return m }

// GetMessages returns a copy of all captured entries.
func (m *MockLogger) GetMessages() []LogMessage {
	r := m.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogMessage, len(r.Messages))
	copy(out, r.Messages)
	return out
}

// HasMessage reports whether an entry with the level and message was captured.
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, e := range m.GetMessages() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// CountLevel returns how many entries were captured at level.
func (m *MockLogger) CountLevel(level string) int {
	n := 0
	for _, e := range m.GetMessages() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Reset clears all captured entries.
func (m *MockLogger) Reset() {
	r := m.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = r.Messages[:0]
}
