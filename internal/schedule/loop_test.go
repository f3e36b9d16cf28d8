package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop() (*Loop, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewLoop(clock, nil), clock
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	loop, _ := newTestLoop()
	var got []int
	for i := 0; i < 3; i++ {
		loop.Post(func() { got = append(got, i) })
	}
	assert.Equal(t, 3, loop.RunPending())
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 0, loop.RunPending())
}

func TestLoop_TimerFiresWhenDue(t *testing.T) {
	loop, clock := newTestLoop()
	fired := false
	loop.Schedule(300*time.Millisecond, func() { fired = true })

	clock.Advance(299 * time.Millisecond)
	loop.RunPending()
	assert.False(t, fired)
	assert.Equal(t, 1, loop.Pending())

	clock.Advance(time.Millisecond)
	loop.RunPending()
	assert.True(t, fired)
	assert.Equal(t, 0, loop.Pending())
}

func TestLoop_SameInstantRunsInScheduleOrder(t *testing.T) {
	loop, clock := newTestLoop()
	var got []string
	loop.Schedule(time.Second, func() { got = append(got, "a") })
	loop.Schedule(time.Second, func() { got = append(got, "b") })
	loop.Schedule(500*time.Millisecond, func() { got = append(got, "early") })

	clock.Advance(time.Second)
	loop.RunPending()
	assert.Equal(t, []string{"early", "a", "b"}, got)
}

func TestLoop_Cancel(t *testing.T) {
	loop, clock := newTestLoop()
	fired := false
	h := loop.Schedule(time.Second, func() { fired = true })

	assert.True(t, loop.Cancel(h))
	assert.False(t, loop.Cancel(h))
	assert.False(t, loop.Cancel(0))

	clock.Advance(2 * time.Second)
	loop.RunPending()
	assert.False(t, fired)
}

func TestLoop_CallbackMaySchedule(t *testing.T) {
	loop, clock := newTestLoop()
	var got []string
	loop.Post(func() {
		got = append(got, "posted")
		loop.Schedule(0, func() { got = append(got, "immediate") })
		loop.Schedule(time.Second, func() { got = append(got, "later") })
	})
	loop.RunPending()
	assert.Equal(t, []string{"posted", "immediate"}, got)

	clock.Advance(time.Second)
	loop.RunPending()
	assert.Equal(t, []string{"posted", "immediate", "later"}, got)
}

func TestLoop_RecoversPanics(t *testing.T) {
	loop, _ := newTestLoop()
	after := false
	loop.Post(func() { panic("boom") })
	loop.Post(func() { after = true })

	require.NotPanics(t, func() { loop.RunPending() })
	assert.True(t, after)
}

func TestLoop_RunDrivesTimers(t *testing.T) {
	loop, clock := newTestLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	loop.Schedule(time.Minute, func() { close(done) })

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestLoop_RunWakesOnPost(t *testing.T) {
	loop, _ := newTestLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	done := make(chan struct{})
	loop.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("posted closure did not run")
	}
}
