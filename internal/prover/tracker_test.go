package prover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTracker(t *testing.T) {
	var r reportTracker
	require.NoError(t, r.wait(context.Background()), "idle tracker returns at once")

	r.add()
	r.add()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.wait(ctx), context.DeadlineExceeded)

	waited := make(chan error, 1)
	go func() { waited <- r.wait(context.Background()) }()

	r.done()
	// A report started while a waiter is blocked is covered by the same wait.
	r.add()
	r.done()
	r.done()

	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after the last report finished")
	}

	// The tracker re-arms after going idle.
	r.add()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, r.wait(ctx2), context.DeadlineExceeded)
	r.done()
	require.NoError(t, r.wait(context.Background()))
}
