package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsSubmittedWork(t *testing.T) {
	loop := NewLoop(8)
	go loop.Run()
	defer loop.Stop(time.Second)

	var ran atomic.Bool
	done := make(chan struct{})
	ok := loop.Submit(context.Background(), func(ctx context.Context) {
		ran.Store(true)
		close(done)
	})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted work did not run")
	}
	assert.True(t, ran.Load())
}

func TestLoopRecoversFromPanic(t *testing.T) {
	loop := NewLoop(8)
	go loop.Run()
	defer loop.Stop(time.Second)

	loop.Submit(context.Background(), func(ctx context.Context) {
		panic("boom")
	})

	var ran atomic.Bool
	done := make(chan struct{})
	loop.Submit(context.Background(), func(ctx context.Context) {
		ran.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop stopped processing work after a panic")
	}
	assert.True(t, ran.Load())
}

func TestLoopEveryFiresRepeatedly(t *testing.T) {
	loop := NewLoop(8)
	go loop.Run()
	defer loop.Stop(time.Second)

	var count atomic.Int32
	loop.Every(10*time.Millisecond, func(ctx context.Context) {
		count.Add(1)
	})

	time.Sleep(60 * time.Millisecond)
	assert.GreaterOrEqual(t, int(count.Load()), 2)
}

func TestLoopStopIsIdempotent(t *testing.T) {
	loop := NewLoop(1)
	go loop.Run()
	loop.Stop(time.Second)
	loop.Stop(time.Second) // must not panic or block
}
