package transport

import (
	"context"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"go.uber.org/zap"

	"github.com/objectfs/meshcast/internal/protocol"
	"github.com/objectfs/meshcast/pkg/errors"
)

// Handshake waits for the init envelope that must open the session, answers
// it with init_ok and returns the assigned identity and membership.
func Handshake(ctx context.Context, r *Reader, w *Writer) (*protocol.InitBody, error) {
	var msg maelstrom.Message
	select {
	case <-ctx.Done():
		return nil, handshakeErr("cancelled before init", ctx.Err())
	case m, ok := <-r.Inbound():
		if !ok {
			var cause error
			select {
			case cause = <-r.Errors():
			default:
			}
			return nil, handshakeErr("input ended before init", cause)
		}
		msg = m
	}

	body, err := protocol.Decode(msg)
	if err != nil {
		return nil, err
	}
	initBody, ok := body.(*protocol.InitBody)
	if !ok {
		return nil, handshakeErr("first message is not init", nil).
			WithContext("type", body.Kind()).
			WithContext("src", msg.Src)
	}
	if initBody.NodeID == "" {
		return nil, handshakeErr("init carries an empty node_id", nil).WithContext("src", msg.Src)
	}

	reply, err := protocol.Encode(initBody.NodeID, msg.Src, &protocol.InitOKBody{
		Header: protocol.Header{InReplyTo: initBody.MsgID},
	})
	if err != nil {
		return nil, err
	}
	if err := w.Send(reply); err != nil {
		return nil, err
	}

	r.logger.Info("initialized",
		zap.String("node", initBody.NodeID),
		zap.Int("cluster_size", len(initBody.NodeIDs)))
	return initBody, nil
}

func handshakeErr(text string, cause error) *errors.MeshcastError {
	err := errors.NewError(errors.ErrCodeHandshake, text).
		WithComponent("transport").
		WithOperation("handshake")
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
