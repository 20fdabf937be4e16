package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// lineWriter fans complete log lines out to its sinks from a single goroutine.
// Lines are buffered and the buffers are flushed whenever the queue runs dry.
type lineWriter struct {
	lines  chan []byte
	flushc chan chan error
	done   chan struct{}
	sinks  []*bufio.Writer

	state  sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newLineWriter(outputs []io.Writer, bufSize, depth int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	if depth <= 0 {
		depth = 512
	}
	w := &lineWriter{
		lines:  make(chan []byte, depth),
		flushc: make(chan chan error),
		done:   make(chan struct{}),
	}
	for _, out := range outputs {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *lineWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.record(w.flush())
				return
			}
			w.record(w.write(line))
			if len(w.lines) == 0 {
				w.record(w.flush())
			}
		case ack := <-w.flushc:
			w.drain()
			ack <- w.flush()
		}
	}
}

// drain writes whatever is already queued without waiting for more.
func (w *lineWriter) drain() {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			w.record(w.write(line))
		default:
			return
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full.
func (w *lineWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.firstErr(); err != nil {
		return err
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush returns once every line queued before the call reached the sinks.
func (w *lineWriter) Flush() error {
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return w.firstErr()
	}
	ack := make(chan error, 1)
	w.flushc <- ack
	if err := <-ack; err != nil {
		return err
	}
	return w.firstErr()
}

// Close drains the queue and reports the first write error seen.
func (w *lineWriter) Close() error {
	w.state.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.state.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *lineWriter) write(p []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *lineWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *lineWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
