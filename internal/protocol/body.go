package protocol

// Message type tags carried in the body "type" field.
const (
	TypeInit        = "init"
	TypeInitOK      = "init_ok"
	TypeBroadcast   = "broadcast"
	TypeBroadcastOK = "broadcast_ok"
	TypeRead        = "read"
	TypeReadOK      = "read_ok"
	TypeTopology    = "topology"
	TypeTopologyOK  = "topology_ok"
	TypeError       = "error"
)

// Header holds the fields shared by every body. Message identifiers are
// optional and omitted from the wire when nil.
type Header struct {
	Type      string  `json:"type"`
	MsgID     *uint64 `json:"msg_id,omitempty"`
	InReplyTo *uint64 `json:"in_reply_to,omitempty"`
}

func (h *Header) header() *Header { return h }

// Body is one of the tagged body variants below.
type Body interface {
	Kind() string
	header() *Header
}

type InitBody struct {
	Header
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

type InitOKBody struct {
	Header
}

type BroadcastBody struct {
	Header
	Message uint64 `json:"message"`
}

// BroadcastOKBody acknowledges a broadcast. Between nodes MsgID carries the
// acknowledged value.
type BroadcastOKBody struct {
	Header
}

type ReadBody struct {
	Header
}

type ReadOKBody struct {
	Header
	Messages []uint64 `json:"messages"`
}

type TopologyBody struct {
	Header
	Topology map[string][]string `json:"topology"`
}

type TopologyOKBody struct {
	Header
}

// ErrorBody is a Maelstrom error reply.
type ErrorBody struct {
	Header
	Code int    `json:"code"`
	Text string `json:"text"`
}

// UnknownBody is returned by Decode for types this node does not handle.
type UnknownBody struct {
	Header
}

func (*InitBody) Kind() string        { return TypeInit }
func (*InitOKBody) Kind() string      { return TypeInitOK }
func (*BroadcastBody) Kind() string   { return TypeBroadcast }
func (*BroadcastOKBody) Kind() string { return TypeBroadcastOK }
func (*ReadBody) Kind() string        { return TypeRead }
func (*ReadOKBody) Kind() string      { return TypeReadOK }
func (*TopologyBody) Kind() string    { return TypeTopology }
func (*TopologyOKBody) Kind() string  { return TypeTopologyOK }
func (*ErrorBody) Kind() string       { return TypeError }
func (b *UnknownBody) Kind() string   { return b.Type }

// ID returns a pointer to a copy of v, for the optional identifier fields.
func ID(v uint64) *uint64 {
	return &v
}
