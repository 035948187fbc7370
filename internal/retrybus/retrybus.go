package retrybus

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/objectfs/meshcast/internal/timer"
)

// pending is an outbound message awaiting acknowledgment.
type pending[M any] struct {
	msg M
	// seq orders entries by their last (re)send.
	seq uint64
}

// peerLink holds the retransmission state of a single peer.
type peerLink[M any] struct {
	timer   *timer.Timer
	pending map[uint64]*pending[M]
}

// Bus tracks unacknowledged messages per peer and hands out at most one due
// retransmission per call to DueRetry. It is owned by the engine loop and is
// not safe for concurrent use.
type Bus[M any] struct {
	clock    clockwork.Clock
	interval time.Duration

	order  []string
	links  map[string]*peerLink[M]
	cursor int
	seq    uint64
}

// New creates an empty bus whose peers are retried every interval.
func New[M any](clock clockwork.Clock, interval time.Duration) *Bus[M] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bus[M]{
		clock:    clock,
		interval: interval,
		links:    make(map[string]*peerLink[M]),
	}
}

// RegisterPeers replaces the peer set. Links of peers that are no longer
// listed are cancelled together with their pending messages. Every listed
// peer gets a freshly reset timer and keeps whatever it still had pending.
func (b *Bus[M]) RegisterPeers(peers []string) {
	links := make(map[string]*peerLink[M], len(peers))
	order := make([]string, 0, len(peers))
	for _, peer := range peers {
		if _, dup := links[peer]; dup {
			continue
		}
		link, ok := b.links[peer]
		if ok {
			link.timer.Reset()
		} else {
			link = b.newLink()
		}
		links[peer] = link
		order = append(order, peer)
	}
	b.links = links
	b.order = order
	b.cursor = 0
}

func (b *Bus[M]) newLink() *peerLink[M] {
	return &peerLink[M]{
		timer:   timer.New(b.clock, b.interval),
		pending: make(map[uint64]*pending[M]),
	}
}

// Offer records msg as in flight to peer for value. It returns msg and true
// the first time the (peer, value) pair is offered, restarting the peer's
// timer. Later offers return the tracked message and false. Unknown peers are
// added to the rotation on demand.
func (b *Bus[M]) Offer(peer string, value uint64, msg M) (M, bool) {
	link, ok := b.links[peer]
	if !ok {
		link = b.newLink()
		b.links[peer] = link
		b.order = append(b.order, peer)
	}
	if existing, ok := link.pending[value]; ok {
		return existing.msg, false
	}
	b.seq++
	link.pending[value] = &pending[M]{msg: msg, seq: b.seq}
	link.timer.Reset()
	return msg, true
}

// Acknowledge forgets the message for value sent to peer. It is idempotent
// and ignores unknown peers.
func (b *Bus[M]) Acknowledge(peer string, value uint64) bool {
	link, ok := b.links[peer]
	if !ok {
		return false
	}
	if _, ok := link.pending[value]; !ok {
		return false
	}
	delete(link.pending, value)
	return true
}

// DueRetry walks the peers in a fixed rotation starting after the last peer
// it serviced. The first peer whose timer has elapsed has its timer reset
// and yields its least recently sent message, unchanged. A due peer with
// nothing pending still consumes the call.
func (b *Bus[M]) DueRetry() (M, bool) {
	var zero M
	n := len(b.order)
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		link := b.links[b.order[idx]]
		if !link.timer.Elapsed() {
			continue
		}
		link.timer.Reset()
		b.cursor = (idx + 1) % n

		var oldest *pending[M]
		for _, p := range link.pending {
			if oldest == nil || p.seq < oldest.seq {
				oldest = p
			}
		}
		if oldest == nil {
			return zero, false
		}
		b.seq++
		oldest.seq = b.seq
		return oldest.msg, true
	}
	return zero, false
}

// Peers returns the peers in rotation order.
func (b *Bus[M]) Peers() []string {
	return append([]string(nil), b.order...)
}

// Pending returns the number of in-flight messages across all peers.
func (b *Bus[M]) Pending() int {
	total := 0
	for _, link := range b.links {
		total += len(link.pending)
	}
	return total
}

// PendingFor returns the number of in-flight messages to peer.
func (b *Bus[M]) PendingFor(peer string) int {
	if link, ok := b.links[peer]; ok {
		return len(link.pending)
	}
	return 0
}
