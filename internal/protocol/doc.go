/*
Package protocol defines the message bodies exchanged by meshcast nodes and
their Maelstrom clients, and converts them to and from maelstrom.Message
envelopes.

Every body is a distinct Go type implementing Body; Decode selects the type
by inspecting the "type" field before unmarshalling, so handlers switch on
the concrete type rather than probing optional fields:

	body, err := protocol.Decode(msg)
	if err != nil {
		return err // malformed input is fatal
	}
	switch b := body.(type) {
	case *protocol.BroadcastBody:
		...
	case *protocol.ReadOKBody:
		...
	}

Optional message identifiers are pointers and are left out of the encoded
body when nil.
*/
package protocol
