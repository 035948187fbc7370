/*
Package metrics provides Prometheus metrics collection for a meshcast node.

# Overview

The collector counts the messages the node receives and sends, tracks the
state of its dissemination buffers, and optionally serves everything over
HTTP. It keeps a small set of internal counters alongside the Prometheus
series for the debug endpoint.

Architecture

	┌─────────────┐
	│  Collector  │  ← fed by the engine loop
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼───────┐
	│  Prometheus  │         │  HTTP Endpoints │
	│   Registry   │         │  /metrics       │
	│              │         │  /health        │
	│ - Counters   │         │  /debug/messages│
	│ - Histograms │         └─────────────────┘
	│ - Gauges     │
	└──────────────┘

# Usage

	collector, err := metrics.NewCollector(metrics.ConfigFrom(cfg.Monitoring.Metrics,
		map[string]string{"node": nodeID}), logger)
	if err != nil {
		return err
	}

	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

	collector.RecordReceived("broadcast")
	collector.RecordSent("broadcast", metrics.ModeFanout)
	collector.UpdateInflight(bus.Pending())

The HTTP server only starts when a port is configured. Stdout belongs to the
Maelstrom protocol, so scraping over HTTP is the only way to observe the
series of a running node.

# Metrics

Counters:
  - messages_received_total{type}
  - messages_sent_total{type,mode}: mode is reply, fanout, retry or sync
  - retransmissions_total
  - protocol_errors_total{operation,code}

Gauges:
  - inflight_messages
  - known_values
  - pending_reads
  - topology_links

Histograms:
  - handle_duration_seconds{type}

All series carry the configured constant labels, typically the node id.

# Disabled Mode

A collector created with Enabled=false has no registry and every Record and
Update call returns immediately, so callers never need to check.

# Thread Safety

All methods are safe for concurrent use. The engine loop is the only writer;
the HTTP server reads concurrently.
*/
package metrics
