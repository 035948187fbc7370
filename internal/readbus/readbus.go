// Package readbus defers client read replies so that values still in flight
// through the mesh have a chance to arrive before the reply is built.
package readbus

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/objectfs/meshcast/internal/timer"
)

// Reply is the skeleton of a deferred read_ok. Values is filled when the
// reply is released.
type Reply struct {
	To        string
	InReplyTo *uint64
	Values    []uint64
}

type pendingRead struct {
	timer *timer.Timer
	reply Reply
}

// Bus is a FIFO of pending read replies that all share one settle time.
// It is owned by the engine loop and is not safe for concurrent use.
type Bus struct {
	clock  clockwork.Clock
	settle time.Duration
	queue  []pendingRead
}

// New creates an empty bus releasing replies after settle.
func New(clock clockwork.Clock, settle time.Duration) *Bus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bus{clock: clock, settle: settle}
}

// Enqueue schedules reply for release once the settle time has passed.
func (b *Bus) Enqueue(reply Reply) {
	reply.Values = nil
	b.queue = append(b.queue, pendingRead{
		timer: timer.New(b.clock, b.settle),
		reply: reply,
	})
}

// Poll releases the oldest reply if its settle time has passed, with Values
// taken from snapshot at that moment. At most one reply is released per call.
func (b *Bus) Poll(snapshot func() []uint64) (Reply, bool) {
	if len(b.queue) == 0 || !b.queue[0].timer.Elapsed() {
		return Reply{}, false
	}
	head := b.queue[0]
	b.queue[0] = pendingRead{}
	b.queue = b.queue[1:]

	reply := head.reply
	reply.Values = snapshot()
	return reply, true
}

// Len returns the number of replies waiting.
func (b *Bus) Len() int {
	return len(b.queue)
}
