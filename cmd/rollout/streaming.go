package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

type StreamMode string

const (
	StreamInstant StreamMode = "instant"
	StreamQuiet   StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case StreamInstant, StreamQuiet:
		return m, nil
	case "":
		return StreamInstant, nil
	}
	return "", fmt.Errorf("unknown stream mode %q (want instant or quiet)", s)
}

// StreamWriter prints generated text chunks as they arrive, or holds them
// until Flush in quiet mode.
type StreamWriter struct {
	mode   StreamMode
	output io.Writer
	buffer *bufio.Writer

	mu          sync.Mutex
	accumulator strings.Builder
}

func NewStreamWriter(mode StreamMode, output io.Writer) *StreamWriter {
	return &StreamWriter{
		mode:   mode,
		output: output,
		buffer: bufio.NewWriterSize(output, 4096),
	}
}

// Write handles one decoded chunk. It matches inference.StreamFunc.
func (w *StreamWriter) Write(chunk string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.accumulator.WriteString(chunk)
	if w.mode == StreamQuiet {
		return
	}
	_, _ = w.buffer.WriteString(chunk)
	_ = w.buffer.Flush()
}

// Flush writes anything still held and returns the full text seen so far.
func (w *StreamWriter) Flush() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := w.accumulator.String()
	if w.mode == StreamQuiet {
		_, _ = fmt.Fprint(w.output, result)
		return result
	}
	_ = w.buffer.Flush()
	return result
}
