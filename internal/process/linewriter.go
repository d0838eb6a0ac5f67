package process

import (
	"bytes"
	"sync"
)

// maxLineBytes bounds a single buffered line; longer output is emitted in chunks.
const maxLineBytes = 64 * 1024

// lineWriter is an io.Writer that hands complete lines to fn.
type lineWriter struct {
	mu  sync.Mutex
	fn  LineFunc
	buf []byte
}

func newLineWriter(fn LineFunc) *lineWriter { return &lineWriter{fn: fn} }

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	start := 0
	for {
		i := bytes.IndexByte(w.buf[start:], '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[start : start+i])
		start += i + 1
	}
	rest := w.buf[start:]
	if len(rest) >= maxLineBytes {
		w.emit(rest)
		rest = rest[:0]
	}
	w.buf = append(w.buf[:0], rest...)
	return len(p), nil
}

// flush emits a trailing partial line.
func (w *lineWriter) flush() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
}

func (w *lineWriter) emit(b []byte) {
	b = bytes.TrimRight(b, "\r")
	w.fn(string(b))
}
