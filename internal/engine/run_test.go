package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/internal/protocol"
	"github.com/objectfs/meshcast/pkg/errors"
)

// lockedSender is safe to inspect while Run is active.
type lockedSender struct {
	mu   sync.Mutex
	sent []maelstrom.Message
}

func (s *lockedSender) Send(msg maelstrom.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *lockedSender) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msg := range s.sent {
		if isType(typ)(msg) {
			n++
		}
	}
	return n
}

func newRunEngine(t *testing.T, cfg *config.Configuration) (*Engine, *lockedSender) {
	t.Helper()
	sender := &lockedSender{}
	e, err := New(Options{
		NodeID:  "n0",
		NodeIDs: nodeNames(25),
		Config:  cfg,
		Sender:  sender,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return e, sender
}

func closedErr() error {
	return errors.NewError(errors.ErrCodeTransportClosed, "end of input")
}

func TestRun_StopsAtEndOfInput(t *testing.T) {
	e, sender := newRunEngine(t, nil)

	inbound := make(chan maelstrom.Message, 4)
	errs := make(chan error, 1)
	for v := uint64(1); v <= 3; v++ {
		msg, err := protocol.Encode("c1", "n0", &protocol.BroadcastBody{Header: protocol.Header{MsgID: protocol.ID(v)}, Message: v})
		require.NoError(t, err)
		inbound <- msg
	}
	close(inbound)
	errs <- closedErr()

	require.NoError(t, e.Run(context.Background(), inbound, errs))
	assert.Equal(t, []uint64{1, 2, 3}, e.Values())
	assert.Equal(t, 3, sender.count(protocol.TypeBroadcastOK))
}

func TestRun_ReturnsFatalErrors(t *testing.T) {
	e, _ := newRunEngine(t, nil)

	inbound := make(chan maelstrom.Message, 1)
	inbound <- raw("c1", "n0", `{"type":"read_ok"}`)

	err := e.Run(context.Background(), inbound, nil)
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeMalformedMessage, code)

	inbound = make(chan maelstrom.Message)
	close(inbound)
	errs := make(chan error, 1)
	errs <- errors.NewError(errors.ErrCodeTransport, "read failed")

	err = e.Run(context.Background(), inbound, errs)
	code, _ = errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeTransport, code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	e, _ := newRunEngine(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.Run(ctx, make(chan maelstrom.Message), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_RetriesAndReleasesReadsWhileIdle(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Dissemination.RetryInterval = 5 * time.Millisecond
	cfg.Dissemination.ReadSettle = 10 * time.Millisecond
	e, sender := newRunEngine(t, cfg)

	inbound := make(chan maelstrom.Message, 2)
	broadcast, err := protocol.Encode("c1", "n0", &protocol.BroadcastBody{Header: protocol.Header{MsgID: protocol.ID(1)}, Message: 9})
	require.NoError(t, err)
	read, err := protocol.Encode("c2", "n0", &protocol.ReadBody{Header: protocol.Header{MsgID: protocol.ID(2)}})
	require.NoError(t, err)
	inbound <- broadcast
	inbound <- read

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, inbound, nil) }()

	// n5 never acknowledges, so n0 keeps retransmitting to it.
	assert.Eventually(t, func() bool {
		return sender.count(protocol.TypeBroadcast) >= 6 && sender.count(protocol.TypeReadOK) == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
