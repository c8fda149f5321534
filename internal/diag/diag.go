// Package diag provides the diagnostics sink for best-effort failures.
// Sinks never affect control flow: writers report and move on.
package diag

import (
	"fmt"
	"os"
	"sync"
)

// Level distinguishes warnings from errors.
type Level string

const (
	Warn  Level = "warn"
	Error Level = "error"
)

// Entry is one diagnostic record.
type Entry struct {
	Level     Level
	Component string
	Message   string
}

// Sink receives diagnostics.
type Sink interface {
	Emit(e Entry)
}

// Warnf emits a warning to sink. A nil sink is a no-op.
func Warnf(sink Sink, component, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink.Emit(Entry{Level: Warn, Component: component, Message: fmt.Sprintf(format, args...)})
}

// Errorf emits an error to sink. A nil sink is a no-op.
func Errorf(sink Sink, component, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink.Emit(Entry{Level: Error, Component: component, Message: fmt.Sprintf(format, args...)})
}

// Stderr writes diagnostics to standard error.
type Stderr struct{}

// Emit implements Sink.
func (Stderr) Emit(e Entry) {
	fmt.Fprintf(os.Stderr, "workmesh: %s: %s: %s\n", e.Level, e.Component, e.Message)
}

// Buffer collects diagnostics for inspection in tests.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
}

// Emit implements Sink.
func (b *Buffer) Emit(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
}

// Entries returns a copy of the collected diagnostics.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
