package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeListener struct {
	started chan context.Context
	err     error
}

func (f *fakeListener) Run(ctx context.Context) error {
	f.started <- ctx
	<-ctx.Done()
	return f.err
}

func TestStartListenerOutlivesCallerUntilStopped(t *testing.T) {
	l := &fakeListener{started: make(chan context.Context, 1)}

	stop := startListener(l, zap.NewNop())
	var runCtx context.Context
	select {
	case runCtx = <-l.started:
	case <-time.After(time.Second):
		t.Fatal("listener never started")
	}

	// A shutdown signal cancels the server context, not the listener's.
	assert.NoError(t, runCtx.Err())

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	require.ErrorIs(t, runCtx.Err(), context.Canceled)
}

func TestStartListenerLogsRunError(t *testing.T) {
	l := &fakeListener{started: make(chan context.Context, 1), err: errors.New("broker gone")}

	core, logs := observer.New(zap.ErrorLevel)

	stop := startListener(l, zap.New(core))
	<-l.started
	stop()

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "result listener stopped", logs.All()[0].Message)
}
