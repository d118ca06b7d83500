package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

func TestRunnerStopsAllOnFirstExit(t *testing.T) {
	failure := errors.New("transport lost")
	r := NewRunner()
	r.Go(
		NamedRun("blocking", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error {
			return failure
		}),
	)
	err := r.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure))
	assert.Equal(t, failure.Error(), err.Error())
	assert.Error(t, r.Context().Err())
}

func TestRunnerStop(t *testing.T) {
	var order []string
	r := NewRunner()
	r.CloseOnExit(
		closerFunc(func() error { order = append(order, "link"); return nil }),
		closerFunc(func() error { order = append(order, "bridge"); return nil }),
	)
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
	assert.Equal(t, []string{"bridge", "link"}, order)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	assert.NoError(t, errs.Add(nil, context.Canceled).Aggregate())

	first, second := errors.New("first"), errors.New("second")
	err := errs.Add(first, second).Aggregate()
	require.Error(t, err)
	assert.Equal(t, "Multiple errors:\nfirst\nsecond", err.Error())
	assert.ErrorIs(t, err, second)
}

func TestRunWithContextCloser(t *testing.T) {
	closed := make(chan struct{})
	unblock := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := RunWithContextCloser(ctx, closerFunc(func() error {
		close(closed)
		close(unblock)
		return nil
	}), func() error {
		<-unblock
		return nil
	})
	assert.Equal(t, context.DeadlineExceeded, err)
	select {
	case <-closed:
	default:
		t.Fatal("closer not called")
	}
}
