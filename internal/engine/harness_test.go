package engine

import (
	"strconv"
	"strings"
	"testing"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/internal/protocol"
)

// network is an in-memory message bus shared by every node of a cluster.
// Sends are queued and only delivered by cluster.deliver, so handlers never
// recurse into each other.
type network struct {
	queue []maelstrom.Message
	sent  []maelstrom.Message
}

func (n *network) Send(msg maelstrom.Message) error {
	n.sent = append(n.sent, msg)
	n.queue = append(n.queue, msg)
	return nil
}

type cluster struct {
	t     *testing.T
	clock *clockwork.FakeClock
	net   *network
	nodes map[string]*Engine
	ids   []string

	// drop discards a message in flight when it returns true.
	drop    func(maelstrom.Message) bool
	clients []maelstrom.Message
	msgID   uint64
}

func newCluster(t *testing.T, cfg *config.Configuration, ids ...string) *cluster {
	t.Helper()
	c := &cluster{
		t:     t,
		clock: clockwork.NewFakeClock(),
		net:   &network{},
		nodes: make(map[string]*Engine),
		ids:   ids,
	}
	for _, id := range ids {
		e, err := New(Options{
			NodeID:  id,
			NodeIDs: ids,
			Config:  cfg,
			Clock:   c.clock,
			Sender:  c.net,
			Logger:  zaptest.NewLogger(t),
		})
		require.NoError(t, err)
		c.nodes[id] = e
	}
	return c
}

func nodeNames(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "n" + strconv.Itoa(i)
	}
	return ids
}

// request delivers body from client to node right away, bypassing the queue.
func (c *cluster) request(client, node string, body protocol.Body) {
	c.t.Helper()
	c.msgID++
	switch b := body.(type) {
	case *protocol.BroadcastBody:
		b.MsgID = protocol.ID(c.msgID)
	case *protocol.ReadBody:
		b.MsgID = protocol.ID(c.msgID)
	case *protocol.TopologyBody:
		b.MsgID = protocol.ID(c.msgID)
	}
	msg, err := protocol.Encode(client, node, body)
	require.NoError(c.t, err)
	require.NoError(c.t, c.nodes[node].Handle(msg))
}

func (c *cluster) broadcast(node string, v uint64) {
	c.request("c1", node, &protocol.BroadcastBody{Message: v})
}

// deliver drains the network queue.
func (c *cluster) deliver() {
	c.t.Helper()
	for steps := 0; len(c.net.queue) > 0; steps++ {
		require.Less(c.t, steps, 1_000_000, "network did not quiesce")
		msg := c.net.queue[0]
		c.net.queue = c.net.queue[1:]
		if c.drop != nil && c.drop(msg) {
			continue
		}
		node, ok := c.nodes[msg.Dest]
		if !ok {
			c.clients = append(c.clients, msg)
			continue
		}
		require.NoError(c.t, node.Handle(msg))
	}
}

// tick advances the clock by d and lets every node drain its due work.
func (c *cluster) tick(d time.Duration) {
	c.t.Helper()
	c.clock.Advance(d)
	for _, id := range c.ids {
		node := c.nodes[id]
		for i := 0; i <= len(node.Links())+1; i++ {
			require.NoError(c.t, node.Tick())
		}
	}
	c.deliver()
}

// settle delivers everything and runs retry rounds until nothing is in
// flight or rounds are exhausted.
func (c *cluster) settle(rounds int) {
	c.t.Helper()
	c.deliver()
	for i := 0; i < rounds && c.pending() > 0; i++ {
		c.tick(121 * time.Millisecond)
	}
}

func (c *cluster) pending() int {
	total := 0
	for _, node := range c.nodes {
		total += node.Pending()
	}
	return total
}

// sentCount counts messages of type typ sent from src to dest. Empty src or
// dest match anything.
func (c *cluster) sentCount(src, dest, typ string) int {
	n := 0
	for _, msg := range c.net.sent {
		if (src == "" || msg.Src == src) && (dest == "" || msg.Dest == dest) && bodyType(c.t, msg) == typ {
			n++
		}
	}
	return n
}

// clientReplies returns the decoded replies received by client.
func (c *cluster) clientReplies(client string) []protocol.Body {
	var out []protocol.Body
	for _, msg := range c.clients {
		if msg.Dest == client {
			out = append(out, decode(c.t, msg))
		}
	}
	return out
}

func decode(t *testing.T, msg maelstrom.Message) protocol.Body {
	t.Helper()
	body, err := protocol.Decode(msg)
	require.NoError(t, err)
	return body
}

func bodyType(t *testing.T, msg maelstrom.Message) string {
	return decode(t, msg).Kind()
}

func isType(typ string) func(maelstrom.Message) bool {
	return func(msg maelstrom.Message) bool {
		return strings.Contains(string(msg.Body), `"type":"`+typ+`"`)
	}
}
