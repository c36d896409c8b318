package completion

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/docgen/pkg/types"
)

// SSE framing
const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 4 * 1024 * 1024
)

// Decoder turns an SSE body into a sequence of completion chunks.
// It is not safe for concurrent use.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *zap.Logger

	chunk   *types.CompletionChunk
	err     error
	done    bool
	skipped int
}

// NewDecoder creates a decoder reading SSE lines from r
func NewDecoder(r io.Reader, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBuffer)
	return &Decoder{scanner: scanner, logger: logger}
}

// Next advances to the next chunk. It returns false at [DONE], at EOF,
// or on a read error (see Err).
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}

	for d.scanner.Scan() {
		payload, ok := framePayload(d.scanner.Text())
		if !ok {
			continue
		}

		if payload == doneSentinel {
			d.finish()
			return false
		}

		var chunk types.CompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			d.skipped++
			derr := &DecodeError{Line: payload, Err: err}
			d.logger.Warn("skipping malformed sse frame",
				zap.Error(derr),
				zap.String("frame", truncate(payload, 200)))
			continue
		}

		d.chunk = &chunk
		return true
	}

	d.err = d.scanner.Err()
	d.finish()
	return false
}

// Chunk returns the chunk decoded by the last successful Next
func (d *Decoder) Chunk() *types.CompletionChunk {
	return d.chunk
}

// Err returns the first read error, if any. Reaching [DONE] or EOF is not an error.
func (d *Decoder) Err() error {
	return d.err
}

// Skipped returns the number of malformed frames dropped so far
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) finish() {
	d.done = true
	d.chunk = nil
}

// framePayload extracts the data payload of one SSE line.
// Blank lines, comments and non-data fields report ok=false.
func framePayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, dataPrefix)), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
