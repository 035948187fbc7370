/*
Package config provides configuration management for meshcast nodes.

Configuration is layered, later sources overriding earlier ones:

	┌─────────────────────────────────────────────┐
	│          Command-line flags                 │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (MESHCAST_*)                      │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Sections

Global: log level and format. Logs always go to stderr because stdout
carries protocol traffic.

Topology: how peer links are derived. In "partition" mode the adjacency
handed down by the topology message is ignored and links come from a hub
partition keyed on the numeric suffix of node identifiers; "provided" mode
uses the adjacency as given.

Dissemination: retry policy ("backbone" tracks hub-to-hub links only, "all"
tracks every link), retransmission interval, and how long client reads are
held back so anti-entropy replies can land first.

Monitoring: Prometheus metrics. The registry is always populated when
enabled; the HTTP endpoint is only served when a port is set.

# Example

	global:
	  log_level: DEBUG
	  log_format: json
	topology:
	  mode: partition
	  hub_stride: 5
	  backbone: chain
	dissemination:
	  retry_policy: backbone
	  retry_interval: 120ms
	  read_settle: 1850ms
	monitoring:
	  metrics:
	    port: 9100

Loading:

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
*/
package config
