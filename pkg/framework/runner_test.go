package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerCancelsOnFailure(t *testing.T) {
	failure := errors.New("device gone")
	canceled := make(chan struct{})
	r := NewRunner().Go(
		NamedRun("client", RunFunc(func(ctx context.Context) error {
			return failure
		})),
		NamedRun("bridge", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(canceled)
			return ctx.Err()
		})),
	)
	err := r.Wait()
	require.ErrorIs(t, err, failure)
	assert.Equal(t, failure.Error(), err.Error())
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("bridge not canceled")
	}
}

func TestRunnerAggregates(t *testing.T) {
	err1, err2 := errors.New("one"), errors.New("two")
	started := make(chan struct{})
	r := NewRunner().Go(
		RunFunc(func(ctx context.Context) error {
			<-started
			return err1
		}),
		RunFunc(func(ctx context.Context) error {
			close(started)
			return err2
		}),
	)
	err := r.Wait()
	require.ErrorIs(t, err, err1)
	require.ErrorIs(t, err, err2)
	var agg *AggregatedError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
}

func TestRunnerCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx).Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel()
	require.NoError(t, r.Wait())
	require.NoError(t, NewRunner().Wait())
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	closed := 0
	closer := closerFunc(func() error {
		closed++
		close(unblock)
		return nil
	})
	go cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-unblock
		return nil
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, closed)
}
