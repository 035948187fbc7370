/*
Package retrybus keeps the per-peer retransmission state of the
dissemination engine.

Each peer link owns a countdown timer and the exact messages sent to that
peer that are still waiting for an acknowledgment, keyed by value. At most
one message per (peer, value) is ever in flight, and a retransmission reuses
the tracked message verbatim.

The engine calls DueRetry once per idle iteration. Peers are visited in a
fixed rotation so that a busy peer cannot starve the others:

	bus := retrybus.New[maelstrom.Message](clock, 120*time.Millisecond)
	bus.RegisterPeers([]string{"n0", "n10"})
	if msg, first := bus.Offer("n0", 42, out); first {
		send(msg)
	}
	...
	if msg, ok := bus.DueRetry(); ok {
		send(msg)
	}
*/
package retrybus
