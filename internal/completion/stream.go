package completion

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docgen/pkg/types"
)

// Stream is a pull iterator over the chunks of one completion response
type Stream struct {
	body     io.ReadCloser
	cancel   context.CancelFunc
	idle     *idleReader
	decoder  *Decoder
	attempts int

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an SSE body obtained outside the client, such as a recorded
// response. Close closes body.
func NewStream(body io.ReadCloser, logger *zap.Logger) *Stream {
	return newStream(body, nil, 0, logger)
}

// newStream decodes body. With a cancel func and a positive idle timeout, a
// Read that waits longer than idle aborts the request and the stream ends
// with a *TransportError wrapping ErrStalled.
func newStream(body io.ReadCloser, cancel context.CancelFunc, idle time.Duration, logger *zap.Logger) *Stream {
	s := &Stream{body: body, cancel: cancel, attempts: 1}
	var r io.Reader = body
	if cancel != nil && idle > 0 {
		s.idle = newIdleReader(body, idle, cancel)
		r = s.idle
	}
	s.decoder = NewDecoder(r, logger)
	return s
}

// Next advances to the next chunk. The connection is released as soon as
// the stream ends.
func (s *Stream) Next() bool {
	if s.decoder.Next() {
		return true
	}
	_ = s.Close()
	return false
}

// Chunk returns the current chunk
func (s *Stream) Chunk() *types.CompletionChunk {
	return s.decoder.Chunk()
}

// Err returns the read error that ended the stream, if any. A stalled body
// is reported as a *TransportError.
func (s *Stream) Err() error {
	err := s.decoder.Err()
	if errors.Is(err, ErrStalled) {
		return &TransportError{Attempts: s.attempts, Err: err}
	}
	return err
}

// Close aborts the request and releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.idle != nil {
			s.idle.stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Collect drains s and returns the trimmed concatenation of chunk content
// in arrival order.
func Collect(s *Stream) (string, error) {
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Chunk().Content())
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}
