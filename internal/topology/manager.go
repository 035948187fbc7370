package topology

import (
	"strings"

	"go.uber.org/zap"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/pkg/errors"
)

// PeerRegistrar is informed of every freshly computed link list.
type PeerRegistrar interface {
	RegisterPeers(peers []string)
}

// Manager derives this node's peer links and classifies peer roles.
// It is owned by the engine loop and is not safe for concurrent use.
type Manager struct {
	cfg       config.TopologyConfig
	registrar PeerRegistrar
	logger    *zap.Logger

	layout     Layout
	hubs       map[string]struct{}
	membership []string
	links      []string
}

// NewManager creates a manager. registrar may be nil.
func NewManager(cfg config.TopologyConfig, registrar PeerRegistrar, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		registrar: registrar,
		logger:    logger.Named("topology"),
		layout: Layout{
			ClusterSize: cfg.ClusterSize,
			HubStride:   cfg.HubStride,
			NodePrefix:  cfg.NodePrefix,
			Backbone:    cfg.Backbone,
		},
	}
	if len(cfg.Hubs) > 0 {
		m.hubs = make(map[string]struct{}, len(cfg.Hubs))
		for _, h := range cfg.Hubs {
			m.hubs[h] = struct{}{}
		}
	}
	return m
}

// SetMembership records the cluster membership announced at init. When no
// cluster size is configured the partition is sized to the membership.
func (m *Manager) SetMembership(nodeIDs []string) {
	m.membership = append([]string(nil), nodeIDs...)
	if m.cfg.ClusterSize == 0 && len(nodeIDs) > 0 {
		m.layout.ClusterSize = len(nodeIDs)
	}
}

// ComputeLinks rebuilds the link list of selfID. In partition mode the
// adjacency is ignored; in provided mode adjacency[selfID] is used verbatim.
// The registrar always receives the new list, even when it is empty.
func (m *Manager) ComputeLinks(selfID string, membership []string, adjacency map[string][]string) []string {
	if len(membership) == 0 {
		membership = m.membership
	}
	if len(membership) == 0 {
		membership = sortedKeys(adjacency)
	}
	if m.cfg.ClusterSize == 0 && len(membership) > 0 {
		m.layout.ClusterSize = len(membership)
	}

	var links []string
	switch m.cfg.Mode {
	case config.ModeProvided:
		for _, peer := range adjacency[selfID] {
			if peer != selfID {
				links = append(links, peer)
			}
		}
	default:
		links = Partition(selfID, m.layout)
	}

	if len(links) == 0 {
		err := errors.NewError(errors.ErrCodeTopologyMiss, "no links derived for node").
			WithComponent("topology").
			WithOperation("compute_links").
			WithContext("node", selfID).
			WithContext("mode", m.cfg.Mode)
		m.logger.Warn("topology miss, node has no peers",
			zap.String("node", selfID),
			zap.Int("cluster_size", m.layout.ClusterSize),
			zap.Error(err))
	} else {
		m.logger.Info("computed links",
			zap.String("node", selfID),
			zap.String("mode", m.cfg.Mode),
			zap.Strings("links", links))
	}

	m.links = links
	if m.registrar != nil {
		m.registrar.RegisterPeers(links)
	}
	return links
}

// Links returns the current link list.
func (m *Manager) Links() []string {
	return m.links
}

// Layout returns the current partition layout.
func (m *Manager) Layout() Layout {
	return m.layout
}

// IsClient reports whether id belongs to an external client.
func (m *Manager) IsClient(id string) bool {
	return strings.HasPrefix(id, m.cfg.ClientPrefix)
}

// IsHub reports whether id is a backbone hub. An explicit hub list wins;
// otherwise hubs are those of the partition layout in partition mode and
// there are none in provided mode.
func (m *Manager) IsHub(id string) bool {
	if m.hubs != nil {
		_, ok := m.hubs[id]
		return ok
	}
	if m.cfg.Mode == config.ModeProvided {
		return false
	}
	return m.layout.IsHub(id)
}

// SyncTargets returns the links asked for anti-entropy reads: the hub links
// when there are any, otherwise every link.
func (m *Manager) SyncTargets() []string {
	var targets []string
	for _, peer := range m.links {
		if m.IsHub(peer) {
			targets = append(targets, peer)
		}
	}
	if len(targets) == 0 {
		return append([]string(nil), m.links...)
	}
	return targets
}
