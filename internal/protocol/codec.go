package protocol

import (
	"encoding/json"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/objectfs/meshcast/pkg/errors"
)

// required lists the body fields that must be present per type.
var required = map[string][]string{
	TypeInit:      {"node_id", "node_ids"},
	TypeBroadcast: {"message"},
	TypeReadOK:    {"messages"},
	TypeTopology:  {"topology"},
	TypeError:     {"code"},
}

// Decode discriminates the body of msg on its type field and returns the
// matching variant. Types without a variant decode to *UnknownBody. Bodies
// that are not valid JSON objects, lack a type, lack a required field, or
// carry ill-typed fields yield an ErrCodeMalformedMessage error.
func Decode(msg maelstrom.Message) (Body, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Body, &fields); err != nil || fields == nil {
		return nil, malformed(msg, "body is not a JSON object", err)
	}

	var typ string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &typ); err != nil {
			return nil, malformed(msg, "type is not a string", err)
		}
	}
	if typ == "" {
		return nil, malformed(msg, "body has no type", nil)
	}
	for _, name := range required[typ] {
		if _, ok := fields[name]; !ok {
			return nil, malformed(msg, "missing field "+name, nil).WithContext("type", typ)
		}
	}

	var body Body
	switch typ {
	case TypeInit:
		body = &InitBody{}
	case TypeInitOK:
		body = &InitOKBody{}
	case TypeBroadcast:
		body = &BroadcastBody{}
	case TypeBroadcastOK:
		body = &BroadcastOKBody{}
	case TypeRead:
		body = &ReadBody{}
	case TypeReadOK:
		body = &ReadOKBody{}
	case TypeTopology:
		body = &TopologyBody{}
	case TypeTopologyOK:
		body = &TopologyOKBody{}
	case TypeError:
		body = &ErrorBody{}
	default:
		body = &UnknownBody{}
	}
	if err := json.Unmarshal(msg.Body, body); err != nil {
		return nil, malformed(msg, "invalid body", err).WithContext("type", typ)
	}
	return body, nil
}

// Encode wraps body in an envelope from src to dest, stamping its type.
func Encode(src, dest string, body Body) (maelstrom.Message, error) {
	body.header().Type = body.Kind()
	raw, err := json.Marshal(body)
	if err != nil {
		return maelstrom.Message{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode body").
			WithComponent("protocol").
			WithOperation("encode").
			WithContext("type", body.Kind())
	}
	return maelstrom.Message{Src: src, Dest: dest, Body: raw}, nil
}

// HeaderOf returns the shared header of body.
func HeaderOf(body Body) Header {
	return *body.header()
}

// NewError builds an error reply to a request carrying requestID.
func NewError(rpcErr *maelstrom.RPCError, requestID *uint64) *ErrorBody {
	return &ErrorBody{
		Header: Header{InReplyTo: requestID},
		Code:   rpcErr.Code,
		Text:   rpcErr.Text,
	}
}

func malformed(msg maelstrom.Message, text string, cause error) *errors.MeshcastError {
	err := errors.NewError(errors.ErrCodeMalformedMessage, text).
		WithComponent("protocol").
		WithOperation("decode").
		WithContext("src", msg.Src).
		WithDetail("body", string(msg.Body))
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
