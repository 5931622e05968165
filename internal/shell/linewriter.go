package shell

import (
	"bytes"
	"sync"
)

// lineWriter splits a byte stream into lines and hands each one to a
// LineFunc. Both stdout and stderr of a command write to the same instance,
// so writes are serialized with a mutex. Carriage returns are treated as
// line breaks so build tools that redraw progress lines still stream cleanly.
type lineWriter struct {
	mu     sync.Mutex
	onLine LineFunc
	buf    bytes.Buffer
}

func newLineWriter(onLine LineFunc) *lineWriter {
	return &lineWriter{onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexAny(data, "\n\r")
		if i < 0 {
			break
		}
		w.emit(string(data[:i]))
		w.buf.Next(i + 1)
	}
	return len(p), nil
}

// Flush emits any trailing partial line once the command has exited.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	if w.onLine == nil || line == "" {
		return
	}
	w.onLine(line)
}
