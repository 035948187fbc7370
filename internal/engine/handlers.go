package engine

import (
	"fmt"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"go.uber.org/zap"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/internal/metrics"
	"github.com/objectfs/meshcast/internal/protocol"
	"github.com/objectfs/meshcast/internal/readbus"
	"github.com/objectfs/meshcast/pkg/errors"
)

// Handle dispatches one inbound envelope. Only fatal errors are returned:
// an undecodable body or a failed write. Protocol errors are logged and the
// message is dropped.
func (e *Engine) Handle(msg maelstrom.Message) error {
	body, err := protocol.Decode(msg)
	if err != nil {
		e.logger.Error("undecodable message", zap.String("src", msg.Src), zap.Error(err))
		return err
	}

	start := e.clock.Now()
	e.metrics.RecordReceived(body.Kind())

	switch b := body.(type) {
	case *protocol.BroadcastBody:
		err = e.handleBroadcast(msg.Src, b)
	case *protocol.BroadcastOKBody:
		e.handleBroadcastOK(msg.Src, b)
	case *protocol.ReadBody:
		err = e.handleRead(msg.Src, b)
	case *protocol.ReadOKBody:
		err = e.handleReadOK(msg.Src, b)
	case *protocol.TopologyBody:
		err = e.handleTopology(msg.Src, b)
	case *protocol.InitBody:
		err = e.handleInit(msg.Src, b)
	case *protocol.ErrorBody:
		e.protocolError(body.Kind(), errors.NewError(errors.ErrCodeProtocol, "peer reported an error").
			WithContext("src", msg.Src).
			WithDetail("code", b.Code).
			WithDetail("text", b.Text))
	case *protocol.UnknownBody:
		err = e.handleUnsupported(msg.Src, b)
	default:
		e.logger.Debug("ignoring reply", zap.String("src", msg.Src), zap.String("type", body.Kind()))
	}

	e.metrics.RecordHandled(body.Kind(), e.clock.Since(start))
	e.updateGauges()
	return err
}

func (e *Engine) handleBroadcast(src string, b *protocol.BroadcastBody) error {
	v := b.Message
	if e.values.Observe(v) {
		e.logger.Debug("new value", zap.Uint64("value", v), zap.String("src", src))
	}

	if e.topology.IsClient(src) || e.tracked(src) {
		err := e.send(src, &protocol.BroadcastOKBody{
			Header: protocol.Header{InReplyTo: b.MsgID, MsgID: protocol.ID(v)},
		}, metrics.ModeReply)
		if err != nil {
			return err
		}
	}

	e.peers.Acknowledge(src, v)

	if e.values.AlreadyBroadcast(v) {
		return nil
	}
	return e.fanOut(v, src)
}

func (e *Engine) handleBroadcastOK(src string, b *protocol.BroadcastOKBody) {
	if b.MsgID == nil {
		e.protocolError(protocol.TypeBroadcastOK, errors.NewError(errors.ErrCodeProtocol, "broadcast_ok without msg_id").
			WithContext("src", src))
		return
	}
	if e.peers.Acknowledge(src, *b.MsgID) {
		e.logger.Debug("acknowledged", zap.String("peer", src), zap.Uint64("value", *b.MsgID))
	}
}

func (e *Engine) handleRead(src string, b *protocol.ReadBody) error {
	if !e.topology.IsClient(src) {
		return e.send(src, &protocol.ReadOKBody{
			Header:   protocol.Header{InReplyTo: b.MsgID},
			Messages: e.values.Snapshot(),
		}, metrics.ModeReply)
	}

	e.reads.Enqueue(readbus.Reply{To: src, InReplyTo: b.MsgID})
	for _, peer := range e.topology.SyncTargets() {
		if err := e.send(peer, &protocol.ReadBody{}, metrics.ModeSync); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleReadOK(src string, b *protocol.ReadOKBody) error {
	for _, v := range b.Messages {
		e.peers.Acknowledge(src, v)
	}

	fresh := e.values.Merge(b.Messages)
	if len(fresh) > 0 {
		e.logger.Debug("repaired from read", zap.String("src", src), zap.Int("values", len(fresh)))
	}
	for _, v := range fresh {
		if e.values.AlreadyBroadcast(v) {
			continue
		}
		if err := e.fanOut(v, src); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleTopology(src string, b *protocol.TopologyBody) error {
	e.topology.ComputeLinks(e.id, nil, b.Topology)
	return e.send(src, &protocol.TopologyOKBody{
		Header: protocol.Header{InReplyTo: b.MsgID},
	}, metrics.ModeReply)
}

func (e *Engine) handleInit(src string, b *protocol.InitBody) error {
	if b.NodeID != e.id {
		e.logger.Warn("ignoring identity change", zap.String("assigned", b.NodeID), zap.String("src", src))
	}
	return e.send(src, &protocol.InitOKBody{
		Header: protocol.Header{InReplyTo: b.MsgID},
	}, metrics.ModeReply)
}

func (e *Engine) handleUnsupported(src string, b *protocol.UnknownBody) error {
	err := errors.NewError(errors.ErrCodeNotSupported, fmt.Sprintf("unsupported message type %q", b.Type)).
		WithContext("src", src)
	e.protocolError(b.Type, err)
	if b.MsgID == nil {
		return nil
	}
	return e.send(src, protocol.NewError(err.ToRPC(), b.MsgID), metrics.ModeReply)
}

// fanOut sends v to every link except the one it came from, then marks v as
// broadcast. Tracked links go through the retry bus.
func (e *Engine) fanOut(v uint64, from string) error {
	for _, peer := range e.topology.Links() {
		if peer == from {
			continue
		}
		msg, err := protocol.Encode(e.id, peer, &protocol.BroadcastBody{Message: v})
		if err != nil {
			return err
		}
		if e.tracked(peer) {
			if _, first := e.peers.Offer(peer, v, msg); !first {
				continue
			}
		}
		if err := e.sender.Send(msg); err != nil {
			return err
		}
		e.metrics.RecordSent(protocol.TypeBroadcast, metrics.ModeFanout)
	}
	e.values.MarkBroadcast(v)
	return nil
}

// tracked reports whether messages between this node and peer are
// acknowledged and retried.
func (e *Engine) tracked(peer string) bool {
	if e.topology.IsClient(peer) {
		return false
	}
	if e.cfg.RetryPolicy == config.PolicyAll {
		return true
	}
	return e.topology.IsHub(e.id) && e.topology.IsHub(peer)
}

func (e *Engine) send(dest string, body protocol.Body, mode string) error {
	msg, err := protocol.Encode(e.id, dest, body)
	if err != nil {
		return err
	}
	if err := e.sender.Send(msg); err != nil {
		return err
	}
	e.metrics.RecordSent(body.Kind(), mode)
	return nil
}

func (e *Engine) protocolError(operation string, err *errors.MeshcastError) {
	err = err.WithComponent("engine").WithOperation(operation)
	e.logger.Warn("dropping message", zap.String("type", operation), zap.Error(err))
	e.metrics.RecordError(operation, err)
}
