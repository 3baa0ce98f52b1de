package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// Writer is an io.Writer that forwards command output to slog one line at a time.
// Partial lines are held until a newline arrives or Flush is called.
type Writer struct {
	logger *slog.Logger
	level  slog.Level
	attrs  []any

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewWriter constructs a Writer bound to the provided logger.
// attrs are attached to every emitted line (e.g. "cmd", "terraform", "stream", "stderr").
func NewWriter(logger *slog.Logger, level Level, attrs ...any) *Writer {
	return &Writer{logger: logger, level: slog.Level(level), attrs: attrs}
}

// Write logs every complete line contained in p.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(idx+1), "\r\n"))
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := string(bytes.TrimRight(w.buf.Bytes(), "\r\n"))
	w.buf.Reset()
	w.emit(line)
}

func (w *Writer) emit(line string) {
	if w.logger == nil || line == "" {
		return
	}
	args := make([]any, 0, len(w.attrs)+2)
	args = append(args, w.attrs...)
	args = append(args, "line", line)
	w.logger.Log(context.Background(), w.level, "command output", args...)
}
