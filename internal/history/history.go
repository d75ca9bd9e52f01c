// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps an append-only list of human-readable log lines.
// The document builder records every operation in one; the categorizer
// records batch progress from its workers.
package history

import (
	"fmt"
	"io"
	"sync"
)

// Log is an append-only list of lines. It is safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	lines []string
}

// Add appends a formatted line.
func (l *Log) Add(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

// Lines returns a copy of the recorded lines in insertion order.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Len returns the number of recorded lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// WriteTo writes the lines as a numbered list.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, line := range l.Lines() {
		n, err := fmt.Fprintf(w, "%3d. %s\n", i+1, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
