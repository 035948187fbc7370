package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/meshcast/pkg/errors"
)

// Topology modes.
const (
	ModePartition = "partition"
	ModeProvided  = "provided"
)

// Backbone shapes for the hub partition.
const (
	BackboneChain = "chain"
	BackboneMesh  = "mesh"
)

// Retry policies.
const (
	PolicyBackbone = "backbone"
	PolicyAll      = "all"
)

// Configuration represents the complete node configuration
type Configuration struct {
	Global        GlobalConfig        `yaml:"global"`
	Topology      TopologyConfig      `yaml:"topology"`
	Dissemination DisseminationConfig `yaml:"dissemination"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TopologyConfig controls how peer links are derived.
type TopologyConfig struct {
	Mode string `yaml:"mode"`
	// ClusterSize of 0 means the size of the membership list.
	ClusterSize  int      `yaml:"cluster_size"`
	HubStride    int      `yaml:"hub_stride"`
	Backbone     string   `yaml:"backbone"`
	NodePrefix   string   `yaml:"node_prefix"`
	ClientPrefix string   `yaml:"client_prefix"`
	Hubs         []string `yaml:"hubs"`
}

// DisseminationConfig controls retry and read settle timing.
type DisseminationConfig struct {
	RetryPolicy   string        `yaml:"retry_policy"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	ReadSettle    time.Duration `yaml:"read_settle"`
	IdlePoll      time.Duration `yaml:"idle_poll"`
	InboundQueue  int           `yaml:"inbound_queue"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "console",
		},
		Topology: TopologyConfig{
			Mode:         ModePartition,
			ClusterSize:  0,
			HubStride:    5,
			Backbone:     BackboneChain,
			NodePrefix:   "n",
			ClientPrefix: "c",
		},
		Dissemination: DisseminationConfig{
			RetryPolicy:   PolicyBackbone,
			RetryInterval: 120 * time.Millisecond,
			ReadSettle:    1850 * time.Millisecond,
			IdlePoll:      time.Millisecond,
			InboundQueue:  1024,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Port:      0,
				Path:      "/metrics",
				Namespace: "meshcast",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("MESHCAST_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("MESHCAST_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	// Topology settings
	if val := os.Getenv("MESHCAST_TOPOLOGY_MODE"); val != "" {
		c.Topology.Mode = strings.ToLower(val)
	}
	if val := os.Getenv("MESHCAST_CLUSTER_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.Topology.ClusterSize = size
		}
	}
	if val := os.Getenv("MESHCAST_HUB_STRIDE"); val != "" {
		if stride, err := strconv.Atoi(val); err == nil {
			c.Topology.HubStride = stride
		}
	}
	if val := os.Getenv("MESHCAST_BACKBONE"); val != "" {
		c.Topology.Backbone = strings.ToLower(val)
	}
	if val := os.Getenv("MESHCAST_HUBS"); val != "" {
		c.Topology.Hubs = splitList(val)
	}

	// Dissemination settings
	if val := os.Getenv("MESHCAST_RETRY_POLICY"); val != "" {
		c.Dissemination.RetryPolicy = strings.ToLower(val)
	}
	if val := os.Getenv("MESHCAST_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Dissemination.RetryInterval = d
		}
	}
	if val := os.Getenv("MESHCAST_READ_SETTLE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Dissemination.ReadSettle = d
		}
	}

	// Monitoring
	if val := os.Getenv("MESHCAST_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.Metrics.Port = port
		}
	}
	if val := os.Getenv("MESHCAST_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to create config directory")
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to write config file")
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.NewError(errors.ErrCodeConfigValidation, fmt.Sprintf(format, args...)).
			WithComponent("config")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !inList(validLogLevels, strings.ToUpper(c.Global.LogLevel)) {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if f := strings.ToLower(c.Global.LogFormat); f != "console" && f != "json" {
		return invalid("invalid log_format: %s (must be console or json)", c.Global.LogFormat)
	}

	if c.Topology.Mode != ModePartition && c.Topology.Mode != ModeProvided {
		return invalid("invalid topology mode: %s", c.Topology.Mode)
	}
	if c.Topology.Backbone != BackboneChain && c.Topology.Backbone != BackboneMesh {
		return invalid("invalid backbone: %s", c.Topology.Backbone)
	}
	if c.Topology.HubStride <= 0 {
		return invalid("hub_stride must be greater than 0")
	}
	if c.Topology.ClusterSize < 0 {
		return invalid("cluster_size must not be negative")
	}
	if c.Topology.NodePrefix == "" {
		return invalid("node_prefix must not be empty")
	}
	if c.Topology.ClientPrefix == "" {
		return invalid("client_prefix must not be empty")
	}
	if c.Topology.ClientPrefix == c.Topology.NodePrefix {
		return invalid("client_prefix and node_prefix cannot be the same")
	}

	if c.Dissemination.RetryPolicy != PolicyBackbone && c.Dissemination.RetryPolicy != PolicyAll {
		return invalid("invalid retry_policy: %s", c.Dissemination.RetryPolicy)
	}
	if c.Dissemination.RetryInterval <= 0 {
		return invalid("retry_interval must be greater than 0")
	}
	if c.Dissemination.ReadSettle < 0 {
		return invalid("read_settle must not be negative")
	}
	if c.Dissemination.IdlePoll <= 0 {
		return invalid("idle_poll must be greater than 0")
	}
	if c.Dissemination.InboundQueue <= 0 {
		return invalid("inbound_queue must be greater than 0")
	}

	if c.Monitoring.Metrics.Port < 0 || c.Monitoring.Metrics.Port > 65535 {
		return invalid("metrics port out of range: %d", c.Monitoring.Metrics.Port)
	}

	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func inList(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
