/*
Package engine implements the dissemination protocol of a meshcast node.

An Engine owns every piece of protocol state: the known values, the peer
links, the per-peer retry bus and the deferred read queue. It is driven by a
single goroutine, either through Run or by calling Handle and Tick directly,
so none of that state is locked.

# Dissemination

A value first seen by a node is fanned out to every link except the one it
arrived on, then marked as broadcast so it is never fanned out again. Which
links are tracked depends on the retry policy:

	backbone  hub-to-hub links only; leaf links are sent once
	all       every peer link

Tracked sends go through the retry bus and are retransmitted verbatim every
retry interval until the peer answers with broadcast_ok carrying the value in
its msg_id. A node only acknowledges broadcasts from clients and over links
the sender tracks.

# Reads

Peers get read_ok right away. Client reads are parked for the read settle
time while the node asks its hub links for their values; every value those
read_ok replies reveal is merged and fanned out like a fresh broadcast. The
parked reply is built from the values known when it is released.

# Loop

Each Run iteration handles one queued inbound message. When the queue is
empty it services at most one retransmission and one settled read, then
waits up to the idle poll interval for input.
*/
package engine
