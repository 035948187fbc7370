package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestTimer_Elapsed(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tm := New(clk, 100*time.Millisecond)

	assert.False(t, tm.Elapsed())
	assert.Equal(t, 100*time.Millisecond, tm.Remaining())

	clk.Advance(100 * time.Millisecond)
	assert.False(t, tm.Elapsed(), "elapsed is strict")
	assert.Equal(t, time.Duration(0), tm.Remaining())

	clk.Advance(time.Millisecond)
	assert.True(t, tm.Elapsed())
}

func TestTimer_Reset(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tm := New(clk, 50*time.Millisecond)

	clk.Advance(60 * time.Millisecond)
	assert.True(t, tm.Elapsed())

	tm.Reset()
	assert.False(t, tm.Elapsed())
	assert.Equal(t, 50*time.Millisecond, tm.Duration())

	clk.Advance(51 * time.Millisecond)
	assert.True(t, tm.Elapsed())
}

func TestTimer_Start(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tm := New(clk, time.Second)

	clk.Advance(500 * time.Millisecond)
	tm.Start(10 * time.Millisecond)
	assert.False(t, tm.Elapsed())
	assert.Equal(t, 10*time.Millisecond, tm.Duration())

	clk.Advance(11 * time.Millisecond)
	assert.True(t, tm.Elapsed())
}

func TestTimer_ZeroDuration(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tm := New(clk, 0)

	assert.False(t, tm.Elapsed())
	clk.Advance(time.Nanosecond)
	assert.True(t, tm.Elapsed())
}
