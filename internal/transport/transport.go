// Package transport moves Maelstrom envelopes between the node and its
// workbench as newline-delimited JSON.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"go.uber.org/zap"

	"github.com/objectfs/meshcast/pkg/errors"
)

// MaxLineSize bounds a single inbound envelope.
const MaxLineSize = 8 << 20

// Reader decodes envelopes from a line stream on its own goroutine and
// delivers them in arrival order.
type Reader struct {
	src    io.Reader
	logger *zap.Logger

	inbound chan maelstrom.Message
	errs    chan error
}

// NewReader creates a reader whose inbound queue holds up to queue envelopes.
func NewReader(src io.Reader, queue int, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue < 0 {
		queue = 0
	}
	return &Reader{
		src:     src,
		logger:  logger.Named("transport"),
		inbound: make(chan maelstrom.Message, queue),
		errs:    make(chan error, 1),
	}
}

// Inbound returns the ordered envelope queue. It is closed when reading
// stops.
func (r *Reader) Inbound() <-chan maelstrom.Message {
	return r.inbound
}

// Errors receives at most one error: ErrCodeTransportClosed at end of input,
// ErrCodeMalformedMessage for an undecodable line, or ErrCodeTransport for a
// read failure.
func (r *Reader) Errors() <-chan error {
	return r.errs
}

// Start launches the reader goroutine. It stops at end of input, on the
// first error, or when ctx is cancelled.
func (r *Reader) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reader) run(ctx context.Context) {
	defer close(r.inbound)

	scanner := bufio.NewScanner(r.src)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg maelstrom.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			r.fail(errors.Wrap(err, errors.ErrCodeMalformedMessage, "undecodable envelope").
				WithComponent("transport").
				WithOperation("read").
				WithDetail("line", string(line)))
			return
		}
		r.logger.Debug("received", zap.String("src", msg.Src), zap.ByteString("body", msg.Body))

		select {
		case r.inbound <- msg:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		r.fail(errors.Wrap(err, errors.ErrCodeTransport, "failed to read input").
			WithComponent("transport").
			WithOperation("read"))
		return
	}
	r.fail(errors.NewError(errors.ErrCodeTransportClosed, "end of input").
		WithComponent("transport").
		WithOperation("read"))
}

func (r *Reader) fail(err error) {
	r.errs <- err
}

// Writer serializes envelopes to a line stream, one flushed line each.
// It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	out    *bufio.Writer
	logger *zap.Logger
}

// NewWriter creates a writer on dst.
func NewWriter(dst io.Writer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{out: bufio.NewWriter(dst), logger: logger.Named("transport")}
}

// Send writes msg followed by a newline and flushes.
func (w *Writer) Send(msg maelstrom.Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode envelope").
			WithComponent("transport").
			WithOperation("write")
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.out.Write(line); err != nil {
		return w.writeErr(err, msg)
	}
	if err := w.out.Flush(); err != nil {
		return w.writeErr(err, msg)
	}
	w.logger.Debug("sent", zap.String("dest", msg.Dest), zap.ByteString("body", msg.Body))
	return nil
}

func (w *Writer) writeErr(err error, msg maelstrom.Message) error {
	return errors.Wrap(err, errors.ErrCodeTransport, "failed to write envelope").
		WithComponent("transport").
		WithOperation("write").
		WithContext("dest", msg.Dest)
}
