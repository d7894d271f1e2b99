package zipstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Sink is the forward-only, ordered byte destination a Writer emits to. It
// cannot be seeked. Emit may suspend (for example, while the HTTP client is
// slow to read); a context cancellation or downstream failure must abort
// it promptly. A closed sink rejects further chunks with ErrSinkClosed.
type Sink interface {
	// Emit hands ownership of p to the sink. The sink must not retain p
	// past the call if it returns an error, and must not modify it.
	Emit(ctx context.Context, p []byte) error

	// Close signals that no further chunks will be emitted. Writer calls
	// Close once, from Finish, whether or not Finish's own emissions
	// succeed; a session abandoned without calling Finish never calls
	// Close.
	Close() error
}

// HTTPSink adapts an http.ResponseWriter into a Sink, flushing after every
// chunk so bytes reach the client as they are produced instead of sitting
// in net/http's internal buffer.
type HTTPSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewHTTPSink wraps w. It panics if w does not implement http.Flusher,
// since without it the archive would buffer until the handler returns,
// defeating the point of streaming.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	f, ok := w.(http.Flusher)
	if !ok {
		panic("zipstream: http.ResponseWriter does not implement http.Flusher")
	}
	return &HTTPSink{w: w, flusher: f}
}

// Emit writes p to the response and flushes it. It returns ctx.Err() without
// writing if ctx is already done, and wraps any write error.
func (s *HTTPSink) Emit(ctx context.Context, p []byte) error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("zipstream: writing to response: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close marks the sink closed. The underlying HTTP response body is closed
// by the caller returning from the handler; there is nothing else to
// release here.
func (s *HTTPSink) Close() error {
	s.closed = true
	return nil
}

// BufferSink is a Sink backed by an in-memory buffer, for tests and for
// callers that want the complete archive bytes rather than a streamed
// response.
type BufferSink struct {
	buf    *bytes.Buffer
	closed bool
}

// NewBufferSink returns a BufferSink that appends to buf.
func NewBufferSink(buf *bytes.Buffer) *BufferSink {
	return &BufferSink{buf: buf}
}

// Emit appends p to the buffer.
func (s *BufferSink) Emit(ctx context.Context, p []byte) error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.buf.Write(p)
	return nil
}

// Close marks the sink closed; further Emit calls return ErrSinkClosed.
func (s *BufferSink) Close() error {
	s.closed = true
	return nil
}
