package logx

import (
	"strings"
	"sync"
)

// LineSink receives one complete line (without the trailing newline).
// Delivery is fire-and-forget.
type LineSink func(line string)

// LineWriter buffers written bytes and emits complete lines to a sink.
//
// It is safe for concurrent use. Flush emits a trailing partial line, if any.
type LineWriter struct {
	mu   sync.Mutex
	buf  strings.Builder
	sink LineSink
}

func NewLineWriter(sink LineSink) *LineWriter {
	return &LineWriter{sink: sink}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	pending := w.buf.String()
	var lines []string
	for {
		i := strings.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(pending[:i], "\r"))
		pending = pending[i+1:]
	}
	w.buf.Reset()
	w.buf.WriteString(pending)
	w.mu.Unlock()

	for _, l := range lines {
		w.emit(l)
	}
	return len(p), nil
}

func (w *LineWriter) Flush() {
	w.mu.Lock()
	rest := w.buf.String()
	w.buf.Reset()
	w.mu.Unlock()
	if rest != "" {
		w.emit(rest)
	}
}

func (w *LineWriter) emit(line string) {
	if w.sink == nil {
		return
	}
	defer func() { _ = recover() }()
	w.sink(line)
}
