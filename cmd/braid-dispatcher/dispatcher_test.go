package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name      string
	failStart bool

	mu      sync.Mutex
	started bool
	stopped bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failStart {
		return errors.New("start failed")
	}

	f.started = true

	return nil
}

func (f *fakeSource) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true

	return nil
}

func (f *fakeSource) state() (started, stopped bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.started, f.stopped
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_StartsAndStopsSources(t *testing.T) {
	first := &fakeSource{name: "schedule"}
	second := &fakeSource{name: "queue"}

	dispatcher := NewDispatcher("test-dispatcher", testLogger(), first, second)

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- dispatcher.Start(ctx)
	}()

	// Give Start a moment to bring the sources up, then shut down.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	for _, source := range []*fakeSource{first, second} {
		started, stopped := source.state()
		assert.True(t, started, "%s should have started", source.name)
		assert.True(t, stopped, "%s should have stopped", source.name)
	}
}

func TestDispatcher_StartFailureStopsStartedSources(t *testing.T) {
	first := &fakeSource{name: "schedule"}
	second := &fakeSource{name: "queue", failStart: true}

	dispatcher := NewDispatcher("test-dispatcher", testLogger(), first, second)

	err := dispatcher.Start(t.Context())
	require.ErrorContains(t, err, "failed to start queue source")

	started, stopped := first.state()
	assert.True(t, started)
	assert.True(t, stopped)

	_, stopped = second.state()
	assert.False(t, stopped)
}
