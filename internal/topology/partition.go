package topology

import (
	"sort"
	"strconv"
	"strings"
)

// Backbone shapes linking the hubs.
const (
	BackboneChain = "chain"
	BackboneMesh  = "mesh"
)

// Layout parameterizes the hub partition. Nodes are named NodePrefix followed
// by a decimal index in [0, ClusterSize). Every index that is a multiple of
// HubStride is a hub owning the HubStride-1 indices that follow it.
type Layout struct {
	ClusterSize int
	HubStride   int
	NodePrefix  string
	Backbone    string
}

// Index returns the numeric suffix of id. Identifiers with another prefix,
// a non-canonical number, or an index outside the cluster are rejected.
func (l Layout) Index(id string) (int, bool) {
	if l.NodePrefix == "" || !strings.HasPrefix(id, l.NodePrefix) {
		return 0, false
	}
	suffix := id[len(l.NodePrefix):]
	if suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil || l.Name(idx) != id {
		return 0, false
	}
	if l.ClusterSize > 0 && idx >= l.ClusterSize {
		return 0, false
	}
	return idx, true
}

// Name returns the identifier for index idx.
func (l Layout) Name(idx int) string {
	return l.NodePrefix + strconv.Itoa(idx)
}

// IsHub reports whether id is a hub of this layout.
func (l Layout) IsHub(id string) bool {
	if l.HubStride <= 0 {
		return false
	}
	idx, ok := l.Index(id)
	return ok && idx%l.HubStride == 0
}

// Hubs lists every hub in ascending index order.
func (l Layout) Hubs() []string {
	if l.HubStride <= 0 || l.ClusterSize <= 0 {
		return nil
	}
	hubs := make([]string, 0, (l.ClusterSize+l.HubStride-1)/l.HubStride)
	for idx := 0; idx < l.ClusterSize; idx += l.HubStride {
		hubs = append(hubs, l.Name(idx))
	}
	return hubs
}

// Partition returns the ordered links of selfID under layout. It is total:
// unrecognized identifiers and degenerate layouts yield an empty list.
//
// A leaf links only to its owning hub. A hub links to the previous hub
// (chain) or to every other hub (mesh), then to its own leaves, then to the
// next hub (chain).
func Partition(selfID string, layout Layout) []string {
	links := []string{}
	if layout.ClusterSize <= 0 || layout.HubStride <= 0 {
		return links
	}
	idx, ok := layout.Index(selfID)
	if !ok {
		return links
	}

	hub := idx - idx%layout.HubStride
	if idx != hub {
		return append(links, layout.Name(hub))
	}

	mesh := layout.Backbone == BackboneMesh
	if mesh {
		for _, other := range layout.Hubs() {
			if other != selfID {
				links = append(links, other)
			}
		}
	} else if prev := hub - layout.HubStride; prev >= 0 {
		links = append(links, layout.Name(prev))
	}

	for leaf := hub + 1; leaf < hub+layout.HubStride && leaf < layout.ClusterSize; leaf++ {
		links = append(links, layout.Name(leaf))
	}

	if next := hub + layout.HubStride; !mesh && next < layout.ClusterSize {
		links = append(links, layout.Name(next))
	}
	return links
}

// sortedKeys returns the keys of adjacency in ascending order.
func sortedKeys(adjacency map[string][]string) []string {
	keys := make([]string, 0, len(adjacency))
	for k := range adjacency {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
