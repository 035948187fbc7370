package retrybus

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = 120 * time.Millisecond

func newBus(peers ...string) (*Bus[string], *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	bus := New[string](clock, interval)
	bus.RegisterPeers(peers)
	return bus, clock
}

func TestBus_OfferOnce(t *testing.T) {
	bus, _ := newBus("n5")

	msg, first := bus.Offer("n5", 1, "first")
	assert.True(t, first)
	assert.Equal(t, "first", msg)

	msg, first = bus.Offer("n5", 1, "second")
	assert.False(t, first)
	assert.Equal(t, "first", msg, "tracked message is kept")
	assert.Equal(t, 1, bus.PendingFor("n5"))
}

func TestBus_RetryReusesMessage(t *testing.T) {
	bus, clock := newBus("n5")
	bus.Offer("n5", 1, "broadcast 1")

	_, ok := bus.DueRetry()
	assert.False(t, ok, "not due before the interval")

	clock.Advance(interval + time.Millisecond)
	msg, ok := bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "broadcast 1", msg)

	_, ok = bus.DueRetry()
	assert.False(t, ok, "timer restarted after a retry")

	clock.Advance(interval + time.Millisecond)
	msg, ok = bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "broadcast 1", msg)
}

func TestBus_AcknowledgeStopsRetries(t *testing.T) {
	bus, clock := newBus("n5")
	bus.Offer("n5", 1, "broadcast 1")

	assert.True(t, bus.Acknowledge("n5", 1))
	assert.False(t, bus.Acknowledge("n5", 1))
	assert.False(t, bus.Acknowledge("n9", 1))
	assert.Equal(t, 0, bus.Pending())

	clock.Advance(interval + time.Millisecond)
	_, ok := bus.DueRetry()
	assert.False(t, ok)

	_, first := bus.Offer("n5", 1, "again")
	assert.True(t, first, "acknowledged value can be tracked again")
}

func TestBus_RoundRobin(t *testing.T) {
	bus, clock := newBus("n0", "n10", "n15")
	bus.Offer("n0", 1, "to n0")
	bus.Offer("n10", 1, "to n10")
	bus.Offer("n15", 1, "to n15")

	clock.Advance(interval + time.Millisecond)

	var got []string
	for i := 0; i < 3; i++ {
		msg, ok := bus.DueRetry()
		require.True(t, ok)
		got = append(got, msg)
	}
	assert.Equal(t, []string{"to n0", "to n10", "to n15"}, got)

	_, ok := bus.DueRetry()
	assert.False(t, ok)
}

func TestBus_RotationResumesAfterLastServiced(t *testing.T) {
	bus, clock := newBus("n0", "n10")
	bus.Offer("n0", 1, "to n0")
	clock.Advance(interval + time.Millisecond)

	msg, ok := bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "to n0", msg)

	bus.Offer("n10", 1, "to n10")
	clock.Advance(interval + time.Millisecond)

	// n0 is due again too, but n10 comes first in the rotation.
	msg, ok = bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "to n10", msg)

	msg, ok = bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "to n0", msg)
}

func TestBus_LeastRecentlySent(t *testing.T) {
	bus, clock := newBus("n5")
	bus.Offer("n5", 30, "v30")
	bus.Offer("n5", 10, "v10")
	bus.Offer("n5", 20, "v20")

	var got []string
	for i := 0; i < 4; i++ {
		clock.Advance(interval + time.Millisecond)
		msg, ok := bus.DueRetry()
		require.True(t, ok)
		got = append(got, msg)
	}
	assert.Equal(t, []string{"v30", "v10", "v20", "v30"}, got)
}

func TestBus_IdleDuePeerConsumesTick(t *testing.T) {
	bus, clock := newBus("n0", "n10")
	bus.Offer("n10", 1, "to n10")
	clock.Advance(interval + time.Millisecond)

	_, ok := bus.DueRetry()
	assert.False(t, ok)

	msg, ok := bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "to n10", msg)
}

func TestBus_RegisterPeersCancelsOrphans(t *testing.T) {
	bus, clock := newBus("n0", "n10")
	bus.Offer("n0", 1, "to n0")
	bus.Offer("n10", 1, "to n10")

	bus.RegisterPeers([]string{"n10", "n15", "n10"})
	assert.Equal(t, []string{"n10", "n15"}, bus.Peers())
	assert.Equal(t, 0, bus.PendingFor("n0"))
	assert.Equal(t, 1, bus.PendingFor("n10"))
	assert.Equal(t, 1, bus.Pending())

	clock.Advance(interval + time.Millisecond)
	msg, ok := bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "to n10", msg)
}

func TestBus_RegisterPeersResetsTimers(t *testing.T) {
	bus, clock := newBus("n0")
	bus.Offer("n0", 1, "to n0")

	clock.Advance(100 * time.Millisecond)
	bus.RegisterPeers([]string{"n0"})
	clock.Advance(50 * time.Millisecond)

	_, ok := bus.DueRetry()
	assert.False(t, ok)

	clock.Advance(interval)
	_, ok = bus.DueRetry()
	assert.True(t, ok)
}

func TestBus_UnknownPeerCreatedOnDemand(t *testing.T) {
	bus, clock := newBus()

	_, first := bus.Offer("n3", 1, "to n3")
	assert.True(t, first)
	assert.Equal(t, []string{"n3"}, bus.Peers())

	clock.Advance(interval + time.Millisecond)
	msg, ok := bus.DueRetry()
	require.True(t, ok)
	assert.Equal(t, "to n3", msg)
}

func TestBus_Empty(t *testing.T) {
	bus, clock := newBus()
	clock.Advance(time.Hour)

	_, ok := bus.DueRetry()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Pending())
	assert.Equal(t, 0, bus.PendingFor("n1"))
}
