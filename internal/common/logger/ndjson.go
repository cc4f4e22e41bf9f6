package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// LineWriter emits NDJSON: one JSON object per line, each line written with
// a single Write call and no buffering between events. Consumers tailing the
// stream (agents piping xin watch) see every event as soon as it happens.
type LineWriter struct {
	mu     sync.Mutex
	w      io.Writer
	indent string
	err    error
}

// NewLineWriter creates a LineWriter targeting w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// NewPrettyLineWriter is NewLineWriter with indented JSON. Each event
// is still one atomic Write, but spans multiple lines; meant for a
// human watching a terminal, not for pipes.
func NewPrettyLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w, indent: "  "}
}

// Emit marshals v and writes it as one newline-terminated line.
// After the first write error the writer is poisoned and every subsequent
// Emit returns that error.
func (l *LineWriter) Emit(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}

	data, err := marshalEvent(v, l.indent)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// One Write per event keeps lines atomic for pipe readers.
	line := append(data, '\n')
	if _, err := l.w.Write(line); err != nil {
		l.err = fmt.Errorf("failed to write event: %w", err)
		return l.err
	}
	return nil
}

// Err returns the sticky write error, if any.
func (l *LineWriter) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func marshalEvent(v any, indent string) ([]byte, error) {
	if indent == "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", indent)
}
