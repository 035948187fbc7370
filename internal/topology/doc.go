/*
Package topology derives a node's peer links from cluster membership.

The adjacency handed down by the cluster is frequently a poor fit for
dissemination, so in partition mode it is ignored and replaced by a shallow
two-level tree: hubs at every HubStride-th index form the backbone and each
remaining node links only to the hub that owns it.

	n0 ─── n5 ─── n10 ─── n15 ─── n20        (chain backbone)
	│       │       │       │       │
	n1..n4  n6..n9  n11..   n16..   n21..n24

Partition is a pure function of the node identifier and the Layout so it can
be tested without any wiring. Manager applies it on every topology change,
hands the result to the retry bus, and answers role queries (client, hub)
for the engine.
*/
package topology
