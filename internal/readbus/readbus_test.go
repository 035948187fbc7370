package readbus

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settle = 1850 * time.Millisecond

func msgID(v uint64) *uint64 { return &v }

func TestBus_HoldsUntilSettled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := New(clock, settle)
	values := []uint64{1}
	snapshot := func() []uint64 { return append([]uint64(nil), values...) }

	bus.Enqueue(Reply{To: "c1", InReplyTo: msgID(4), Values: []uint64{99}})
	assert.Equal(t, 1, bus.Len())

	_, ok := bus.Poll(snapshot)
	assert.False(t, ok)

	values = append(values, 2, 3)
	clock.Advance(settle + time.Millisecond)

	reply, ok := bus.Poll(snapshot)
	require.True(t, ok)
	assert.Equal(t, "c1", reply.To)
	assert.Equal(t, uint64(4), *reply.InReplyTo)
	assert.Equal(t, []uint64{1, 2, 3}, reply.Values, "snapshot taken at release")
	assert.Equal(t, 0, bus.Len())
}

func TestBus_FIFOOnePerPoll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := New(clock, settle)
	snapshot := func() []uint64 { return nil }

	bus.Enqueue(Reply{To: "c1"})
	clock.Advance(time.Second)
	bus.Enqueue(Reply{To: "c2"})
	clock.Advance(time.Second)

	reply, ok := bus.Poll(snapshot)
	require.True(t, ok)
	assert.Equal(t, "c1", reply.To)

	_, ok = bus.Poll(snapshot)
	assert.False(t, ok, "second read has not settled yet")

	clock.Advance(time.Second)
	reply, ok = bus.Poll(snapshot)
	require.True(t, ok)
	assert.Equal(t, "c2", reply.To)
}

func TestBus_Empty(t *testing.T) {
	bus := New(clockwork.NewFakeClock(), settle)
	called := false

	_, ok := bus.Poll(func() []uint64 { called = true; return nil })
	assert.False(t, ok)
	assert.False(t, called)
}
